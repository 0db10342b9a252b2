package types

type LivenessState string

const (
	LivenessIdle     LivenessState = "idle"
	LivenessAwaiting LivenessState = "awaiting"
)
