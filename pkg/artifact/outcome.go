// SPDX-License-Identifier: MPL-2.0

package artifact

import "fmt"

const (
	// StatusOK means the fetch produced a list of artifacts.
	StatusOK Status = "ok"
	// StatusTimedOut means the deadline elapsed before the fetch finished.
	StatusTimedOut Status = "timed_out"
	// StatusFailed means the fetch failed with a classified error.
	StatusFailed Status = "failed"
)

type (
	// Status tags which Outcome variant holds.
	Status string

	// EntryFailure attributes a missing container member to a failure kind.
	EntryFailure struct {
		PathHint string    `json:"path_hint" yaml:"path_hint" toml:"path_hint"`
		Kind     ErrorKind `json:"kind" yaml:"kind" toml:"kind"`
		Message  string    `json:"message" yaml:"message" toml:"message"`
	}

	// Result is the success value of a fetch: the artifacts plus any
	// container members that failed individually.
	Result struct {
		Artifacts     []Artifact
		EntryFailures []EntryFailure
	}

	// Outcome is exactly one of Ok(artifacts), TimedOut, or Failed(kind).
	Outcome struct {
		Status        Status
		Artifacts     []Artifact
		EntryFailures []EntryFailure
		Kind          ErrorKind
		Err           error
	}
)

// OK builds a successful Outcome from a Result.
func OK(res *Result) Outcome {
	if res == nil {
		res = &Result{}
	}
	return Outcome{Status: StatusOK, Artifacts: res.Artifacts, EntryFailures: res.EntryFailures}
}

// TimedOut builds a timed-out Outcome. Partial results are never attached.
func TimedOut() Outcome {
	return Outcome{Status: StatusTimedOut}
}

// Failed builds a failed Outcome classified by KindOf.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Kind: KindOf(err), Err: err}
}

// FromResult converts the (Result, error) pair returned by the pipeline.
func FromResult(res *Result, err error) Outcome {
	if err != nil {
		return Failed(err)
	}
	return OK(res)
}

// NewEntryFailure records a container member failure.
func NewEntryFailure(pathHint string, err error) EntryFailure {
	return EntryFailure{PathHint: pathHint, Kind: KindOf(err), Message: err.Error()}
}

// Merge appends another result's artifacts and failures to r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Artifacts = append(r.Artifacts, other.Artifacts...)
	r.EntryFailures = append(r.EntryFailures, other.EntryFailures...)
}

// IsOK reports whether o holds artifacts.
func (o Outcome) IsOK() bool { return o.Status == StatusOK }

// IsTimedOut reports whether the deadline elapsed.
func (o Outcome) IsTimedOut() bool { return o.Status == StatusTimedOut }

// IsFailed reports whether o holds a failure.
func (o Outcome) IsFailed() bool { return o.Status == StatusFailed }

// Partial reports whether some container members failed.
func (o Outcome) Partial() bool { return o.IsOK() && len(o.EntryFailures) > 0 }

// String renders a one-line description.
func (o Outcome) String() string {
	switch o.Status {
	case StatusOK:
		if len(o.EntryFailures) > 0 {
			return fmt.Sprintf("ok: %d artifact(s), %d failed member(s)", len(o.Artifacts), len(o.EntryFailures))
		}
		return fmt.Sprintf("ok: %d artifact(s)", len(o.Artifacts))
	case StatusTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("failed (%s): %v", o.Kind, o.Err)
	}
}

// Error implements the error interface for EntryFailure.
func (f EntryFailure) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.PathHint, f.Kind, f.Message)
}
