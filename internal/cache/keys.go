package cache

import "fmt"

// Keys centralizes the ephemeral k/v layout from spec §3 so every caller
// constructs the same key for the same concept.
var Keys = keys{}

type keys struct{}

func (keys) RoundStart(round int) string {
	return fmt.Sprintf("round:%d:start_time", round)
}

func (keys) CurrentRound() string { return "real_round" }

func (keys) GameConfig() string { return "game_config" }

func (keys) GameState() string { return "game_state" }

func (keys) Teams() string { return "teams" }

func (keys) TeamByToken(token string) string {
	return fmt.Sprintf("team:token:%s", token)
}

func (keys) Tasks() string { return "tasks" }

func (keys) FlagByStr(flag string) string {
	return fmt.Sprintf("flag:str:%s", flag)
}

func (keys) AttackData() string { return "attack_data" }

func (keys) Session(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (keys) CheckComplete(round, teamID, taskID int) string {
	return fmt.Sprintf("check_complete:%d:%d:%d", round, teamID, taskID)
}

func (keys) CheckDoneChannel(round, teamID, taskID int) string {
	return fmt.Sprintf("check_done:%d:%d:%d", round, teamID, taskID)
}

func (keys) ActionResult(round, teamID, taskID int, action string) string {
	return fmt.Sprintf("action_result:%d:%d:%d:%s", round, teamID, taskID, action)
}

func (keys) RoundTracking(round, teamID, taskID int) string {
	return fmt.Sprintf("round_tracking:%d:%d:%d", round, teamID, taskID)
}

func (keys) ActionStream(round int) string {
	return fmt.Sprintf("action_stream:%d", round)
}

// JobQueue is the FIFO list backing the job queue (internal/queue).
func (keys) JobQueue() string { return "adarena:jobs" }

const EventsChannel = "adarena-events"
