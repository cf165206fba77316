package domain

// AggregateStatus derives TeamTask.status and its public_message from the
// three per-action statuses, per the §4.2 derivation table. Evaluated in
// order — first match wins. The same rule is expressed as a SQL CASE
// expression in internal/store so the derivation executes inside the same
// UPDATE as the triggering per-action write, never as a follow-up
// read-modify-write.
func AggregateStatus(check, put, get TaskStatus) (TaskStatus, string) {
	switch {
	case check == StatusCheckFailed:
		return StatusCheckFailed, "Service check failed"
	case check == StatusDown:
		return StatusDown, "Service is down"
	case check == StatusNotChecked:
		return StatusNotChecked, "Not checked yet"
	case put == StatusCheckFailed:
		return StatusCorrupt, "Service corrupted (PUT failed)"
	case put == StatusDown:
		return StatusCorrupt, "Service corrupted (PUT unreachable)"
	case get == StatusCheckFailed:
		return StatusMumble, "Service mumble (GET failed)"
	case get == StatusDown:
		return StatusMumble, "Service mumble (GET unreachable)"
	default:
		return StatusUp, "Service operational"
	}
}
