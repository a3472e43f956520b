package gpu

import "fmt"

// Result mirrors the status codes returned by presentation and queue
// operations. Non-success values are errors.
type Result int32

const (
	Success                Result = 0
	NotReady               Result = 1
	Timeout                Result = 2
	Suboptimal             Result = 1000001003
	ErrorOutOfHostMemory   Result = -1
	ErrorOutOfDeviceMemory Result = -2
	ErrorInitialization    Result = -3
	ErrorDeviceLost        Result = -4
	ErrorFragmentedPool    Result = -12
	ErrorUnknown           Result = -13
	ErrorOutOfPoolMemory   Result = -1000069000
	ErrorSurfaceLost       Result = -1000000000
	ErrorOutOfDate         Result = -1000001004
)

// IsSuccess reports whether r allows the operation's output to be used.
// Suboptimal counts as success.
func (r Result) IsSuccess() bool {
	switch r {
	case Success, NotReady, Timeout, Suboptimal:
		return true
	}
	return false
}

func (r Result) Error() string {
	return r.String()
}

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotReady:
		return "not ready"
	case Timeout:
		return "timeout"
	case Suboptimal:
		return "suboptimal"
	case ErrorOutOfHostMemory:
		return "out of host memory"
	case ErrorOutOfDeviceMemory:
		return "out of device memory"
	case ErrorInitialization:
		return "initialization failed"
	case ErrorDeviceLost:
		return "device lost"
	case ErrorFragmentedPool:
		return "fragmented pool"
	case ErrorOutOfPoolMemory:
		return "out of pool memory"
	case ErrorSurfaceLost:
		return "surface lost"
	case ErrorOutOfDate:
		return "out of date"
	case ErrorUnknown:
		return "unknown error"
	}
	return fmt.Sprintf("result %d", int32(r))
}
