package scheduler

// Config sizes the fixed tables of a Scheduler.
type Config struct {
	// TaskCapacity is the number of task slots; valid indices are
	// 0..TaskCapacity-1 and lower indices run first within a pass.
	TaskCapacity int `yaml:"task_capacity"`
	// DelayCapacity is the number of soft-delay entries.
	DelayCapacity int `yaml:"delay_capacity"`
	// EventCapacity is the number of event entries.
	EventCapacity int `yaml:"event_capacity"`
}

// DefaultConfig returns the default table sizes.
func DefaultConfig() Config {
	return Config{
		TaskCapacity:  10,
		DelayCapacity: 10,
		EventCapacity: 10,
	}
}
