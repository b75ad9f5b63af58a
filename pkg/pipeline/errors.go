package pipeline

import "errors"

// Stage failure taxonomy. Every one of these is local to a single
// Opportunity; none of them aborts the scan loop.
var (
	// ErrDuplicate means the opportunity's dedup key was already admitted
	// within the live window.
	ErrDuplicate = errors.New("duplicate opportunity")

	// ErrStale means re-validation found the quoted output below the
	// tolerance band of the originally observed output.
	ErrStale = errors.New("stale opportunity")

	// ErrGateRejected means a risk, gas or profit gate refused the trade.
	ErrGateRejected = errors.New("gate rejected")

	// ErrSimulationFailed means the dry run reverted. No gas was spent.
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrBroadcastFailed means the on-chain execution reverted or timed
	// out. Gas was spent.
	ErrBroadcastFailed = errors.New("broadcast failed")

	// ErrSuperseded means a newer scan cycle completed before the
	// opportunity reached simulation.
	ErrSuperseded = errors.New("opportunity superseded")

	// ErrControllerFault covers unexpected collaborator failures such as a
	// balance query error.
	ErrControllerFault = errors.New("controller fault")
)
