package workouts

import "time"

type Workout struct {
	ID           string     `json:"id"`
	CoachID      string     `json:"coach_id"`
	ClientID     string     `json:"client_id"`
	Name         string     `json:"name"`
	Notes        string     `json:"notes"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SetEntry is one logged set of an exercise within a workout. LoadKg is
// the external load only; bodyweight movements log zero and pass
// validation through Reps alone.
type SetEntry struct {
	ID           string    `json:"id"`
	WorkoutID    string    `json:"workout_id"`
	Exercise     string    `json:"exercise"`
	SetNumber    int       `json:"set_number"`
	Reps         int       `json:"reps"`
	LoadKg       float64   `json:"load_kg"`
	MeanVelocity *float64  `json:"mean_velocity,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
