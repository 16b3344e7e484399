package requests

// ViewStatus extends Status with the absence of any request.
type ViewStatus string

const (
	ViewNone     ViewStatus = "none"
	ViewPending  ViewStatus = ViewStatus(StatusPending)
	ViewApproved ViewStatus = ViewStatus(StatusApproved)
	ViewRejected ViewStatus = ViewStatus(StatusRejected)
)

// StatusView is the per-listing projection handed to collaborators.
// RequestID is empty for ViewNone and while an optimistic create is in flight.
type StatusView struct {
	Status    ViewStatus
	RequestID RequestID
}

// NoneView is returned when no request exists or the status could not be fetched.
func NoneView() StatusView {
	return StatusView{Status: ViewNone}
}

// ViewOf projects a request.
func ViewOf(r Request) StatusView {
	return StatusView{Status: ViewStatus(r.Status), RequestID: r.ID}
}

func (v StatusView) IsNone() bool {
	return v.Status == "" || v.Status == ViewNone
}

// Approved reports whether the view should drive conversation resolution.
func (v StatusView) Approved() bool {
	return v.Status == ViewApproved
}
