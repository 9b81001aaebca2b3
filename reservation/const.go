package reservation

// Define the valid statuses of a reservation
// Pending -> Confirmed/InProgress
// Confirmed -> InProgress
// Any non-terminal -> Completed/Cancelled/NoShow (terminal)
const (
	StatusPending    string = "Pending"
	StatusConfirmed         = "Confirmed"
	StatusInProgress        = "InProgress"
	StatusCompleted         = "Completed"
	StatusCancelled         = "Cancelled"
	StatusNoShow            = "NoShow"
)
