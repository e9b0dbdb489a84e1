/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Subject:
    SubjectDTO, CreateSubjectRequest

  Routine:
    RoutineDTO, CreateRoutineRequest, VersionDTO, ActiveItemDTO,
    CreateVersionRequest (CardSpecDTO, ItemSpecDTO), SupersedeItemRequest

  Tracking:
    CompletionDTO, RecordCompletionRequest

  Habit:
    HabitDTO, CreateHabitRequest, StreakDTO

  Scoring:
    DayScoreDTO, SnapshotDTO

DATES:
  All dates cross the wire as "YYYY-MM-DD" strings. Parsing and range
  validation happen in handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - routine/transition.go: CardSpec/ItemSpec domain counterparts
*/
package api

// =============================================================================
// SUBJECT TYPES
// =============================================================================

// SubjectDTO represents a tracked person in API responses.
type SubjectDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TimeZone string `json:"timezone"`
}

// CreateSubjectRequest is the request to register a subject.
type CreateSubjectRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TimeZone string `json:"timezone,omitempty"`
}

// =============================================================================
// ROUTINE TYPES
// =============================================================================

// RoutineDTO represents a routine in API responses.
type RoutineDTO struct {
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateRoutineRequest is the request to create a routine shell.
// Content arrives separately through version creation.
type CreateRoutineRequest struct {
	SubjectID   string `json:"subject_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// VersionDTO represents one routine version.
type VersionDTO struct {
	ID        string  `json:"id"`
	RoutineID string  `json:"routine_id"`
	Number    int     `json:"version_number"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
	CreatedBy string  `json:"created_by,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

// ItemSpecDTO describes one item inside a version creation request.
// At most one of valid_until and duration_days may be set.
type ItemSpecDTO struct {
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	Dosage       string  `json:"dosage,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
	Frequency    string  `json:"frequency,omitempty"`
	Weekdays     []int   `json:"weekdays,omitempty"`
	ValidUntil   *string `json:"valid_until,omitempty"`
	DurationDays *int    `json:"duration_days,omitempty"`
	SortOrder    int     `json:"sort_order"`
}

// CardSpecDTO groups item specs under a moment of day.
type CardSpecDTO struct {
	Moment    string        `json:"moment"`
	SortOrder int           `json:"sort_order"`
	Items     []ItemSpecDTO `json:"items"`
}

// CreateVersionRequest is the request to author a new routine version.
type CreateVersionRequest struct {
	StartDate string        `json:"start_date"`
	Cards     []CardSpecDTO `json:"cards"`
	Notes     string        `json:"notes,omitempty"`
	CreatedBy string        `json:"created_by,omitempty"`
}

// SupersedeItemRequest replaces one item mid-version (dose changes).
type SupersedeItemRequest struct {
	EffectiveDate string      `json:"effective_date"`
	Item          ItemSpecDTO `json:"item"`
}

// ActiveItemDTO is one item of the resolved day view.
type ActiveItemDTO struct {
	ID           string  `json:"id"`
	Moment       string  `json:"moment"`
	Type         string  `json:"type"`
	Name         string  `json:"name"`
	Dosage       string  `json:"dosage,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
	ValidFrom    string  `json:"valid_from"`
	ValidUntil   *string `json:"valid_until,omitempty"`
	SortOrder    int     `json:"sort_order"`
}

// =============================================================================
// TRACKING TYPES
// =============================================================================

// CompletionDTO represents one recorded day fact.
type CompletionDTO struct {
	ID         string   `json:"id"`
	SubjectID  string   `json:"subject_id"`
	ItemID     string   `json:"item_id"`
	Date       string   `json:"date"`
	Completed  bool     `json:"completed"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	RecordedAt string   `json:"recorded_at"`
}

// RecordCompletionRequest records or overwrites a completion for a day.
type RecordCompletionRequest struct {
	ItemID     string   `json:"item_id"`
	Date       string   `json:"date"`
	Completed  bool     `json:"completed"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Value      *float64 `json:"value,omitempty"`
}

// =============================================================================
// HABIT TYPES
// =============================================================================

// HabitDTO represents a habit in API responses.
type HabitDTO struct {
	ID          string   `json:"id"`
	SubjectID   string   `json:"subject_id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	TargetValue *float64 `json:"target_value,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Category    string   `json:"category"`
	Frequency   string   `json:"frequency,omitempty"`
	Weekdays    []int    `json:"weekdays,omitempty"`
	Active      bool     `json:"active"`
}

// CreateHabitRequest is the request to create or update a habit.
type CreateHabitRequest struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	TargetValue *float64 `json:"target_value,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Category    string   `json:"category,omitempty"`
	Frequency   string   `json:"frequency,omitempty"`
	Weekdays    []int    `json:"weekdays,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

// StreakDTO represents derived streak state.
type StreakDTO struct {
	SubjectID     string  `json:"subject_id"`
	HabitID       string  `json:"habit_id"`
	Current       int     `json:"current_streak"`
	Longest       int     `json:"longest_streak"`
	LastCompleted *string `json:"last_completed,omitempty"`
}

// =============================================================================
// SCORING TYPES
// =============================================================================

// DayScoreDTO represents the computed adherence for one day.
// Null score fields mean the category had nothing scheduled.
type DayScoreDTO struct {
	SubjectID          string   `json:"subject_id"`
	Date               string   `json:"date"`
	RoutineScore       *float64 `json:"routine_score"`
	HabitScore         *float64 `json:"habit_score"`
	ExerciseScore      *float64 `json:"exercise_score"`
	DailyScore         *float64 `json:"daily_score"`
	RoutinesCompleted  int      `json:"routines_completed"`
	RoutinesTotal      int      `json:"routines_total"`
	HabitsCompleted    int      `json:"habits_completed"`
	HabitsTotal        int      `json:"habits_total"`
	ExercisesCompleted int      `json:"exercises_completed"`
	ExercisesTotal     int      `json:"exercises_total"`
}

// SnapshotDTO represents a persisted daily rollup.
type SnapshotDTO struct {
	SubjectID         string   `json:"subject_id"`
	Date              string   `json:"date"`
	RoutineScore      *float64 `json:"routine_score"`
	HabitScore        *float64 `json:"habit_score"`
	ExerciseScore     *float64 `json:"exercise_score"`
	DailyScore        *float64 `json:"daily_score"`
	RoutinesCompleted int      `json:"routines_completed"`
	RoutinesTotal     int      `json:"routines_total"`
	HabitsCompleted   int      `json:"habits_completed"`
	HabitsTotal       int      `json:"habits_total"`
	CurrentStreak     int      `json:"current_streak"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
