/*
handlers.go - HTTP API handlers for the adherence engine

PURPOSE:
  Exposes the routine versioning and adherence engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Subjects:
    GET    /api/subjects                    List all subjects
    POST   /api/subjects                    Register a subject
    GET    /api/subjects/{id}               Get subject details
    GET    /api/subjects/{id}/day/{date}    Resolved day view across routines
    GET    /api/subjects/{id}/score/{date}  Computed adherence for a day
    GET    /api/subjects/{id}/snapshots/{date}  Daily snapshot (built on demand)

  Routines:
    POST   /api/subjects/{id}/routines      Create routine shell
    GET    /api/subjects/{id}/routines      List subject's routines
    GET    /api/routines/{id}               Get routine
    GET    /api/routines/{id}/versions      Version history
    POST   /api/routines/{id}/versions      Author a new version (atomic transition)
    GET    /api/routines/{id}/day/{date}    Resolved day view for one routine

  Items:
    POST   /api/items/{id}/supersede        Replace item mid-version (dose change)

  Tracking:
    POST   /api/subjects/{id}/completions   Record/overwrite a day fact
    GET    /api/subjects/{id}/completions?date=YYYY-MM-DD  Records for a day
    GET    /api/subjects/{id}/items/{itemID}/history       Full item history

  Habits:
    POST   /api/subjects/{id}/habits        Create habit
    GET    /api/subjects/{id}/habits        List subject's habits
    GET    /api/habits/{id}                 Get habit
    GET    /api/habits/{id}/streak          Recompute and persist streak state

  Admin:
    POST   /api/admin/snapshots/rebuild     Force-rebuild a frozen snapshot

ARCHITECTURE:
  Handler struct holds the assembled engine:
  - Storage: one store satisfying every persistence interface
  - Resolver, VersionManager, Ledger, Calculator, Scorer, Builder

ERROR HANDLING:
  Domain errors map to HTTP status:
  - 400: construction errors (invalid windows, bad input)
  - 404: missing subject/routine/item/habit
  - 409: invariant violations detected at read time (overlapping versions)
  - 500: everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/adherence-engine/engine"
	"github.com/warp/adherence-engine/habit"
	"github.com/warp/adherence-engine/routine"
	"github.com/warp/adherence-engine/scoring"
	"github.com/warp/adherence-engine/snapshot"
	"github.com/warp/adherence-engine/tracking"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Storage is the persistence surface the handlers need. Both store/sqlite
// and store/memory satisfy it.
type Storage interface {
	routine.TxStore
	tracking.Store
	habit.Store
	habit.StateStore
	snapshot.Store
	snapshot.SubjectSource

	SaveSubject(ctx context.Context, s engine.Subject) error
	ListSubjects(ctx context.Context) ([]engine.Subject, error)
}

// Handler holds the assembled engine behind the HTTP surface.
type Handler struct {
	Store Storage

	Resolver *routine.Resolver
	Versions *routine.VersionManager
	Ledger   *tracking.Ledger
	Streaks  *habit.Calculator
	Scorer   *scoring.Scorer
	Builder  *snapshot.Builder
}

// NewHandler wires the engine components around one store.
func NewHandler(store Storage) *Handler {
	resolver := routine.NewResolver(store)
	ledger := tracking.NewLedger(store)
	streaks := habit.NewCalculator(ledger)
	scorer := scoring.NewScorer(resolver, store, ledger)
	builder := snapshot.NewBuilder(scorer, streaks, store, store, store)

	return &Handler{
		Store:    store,
		Resolver: resolver,
		Versions: routine.NewVersionManager(store),
		Ledger:   ledger,
		Streaks:  streaks,
		Scorer:   scorer,
		Builder:  builder,
	}
}

// =============================================================================
// SUBJECT HANDLERS
// =============================================================================

// ListSubjects returns all registered subjects.
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.Store.ListSubjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list subjects", err)
		return
	}

	dtos := make([]SubjectDTO, len(subjects))
	for i, s := range subjects {
		dtos[i] = subjectDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSubject registers a subject.
func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req CreateSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	subj := engine.Subject{
		ID:       engine.SubjectID(req.ID),
		Name:     req.Name,
		TimeZone: req.TimeZone,
	}
	if subj.ID == "" {
		subj.ID = engine.SubjectID(uuid.NewString())
	}
	if subj.TimeZone == "" {
		subj.TimeZone = "America/Chicago"
	}
	if _, err := time.LoadLocation(subj.TimeZone); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown timezone", err)
		return
	}

	if err := h.Store.SaveSubject(r.Context(), subj); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save subject", err)
		return
	}
	writeJSON(w, http.StatusCreated, subjectDTO(subj))
}

// GetSubject returns one subject.
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	subj, err := h.Store.GetSubject(r.Context(), engine.SubjectID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get subject", err)
		return
	}
	if subj == nil {
		writeError(w, http.StatusNotFound, "Subject not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, subjectDTO(*subj))
}

// SubjectDay returns the resolved day view across all of the subject's routines.
func (h *Handler) SubjectDay(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))
	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}

	items, err := h.Resolver.ActiveItemsForSubject(r.Context(), subjectID, date)
	if err != nil {
		writeDomainError(w, "Failed to resolve day view", err)
		return
	}
	writeJSON(w, http.StatusOK, activeItemDTOs(items))
}

// =============================================================================
// ROUTINE HANDLERS
// =============================================================================

// CreateRoutine creates a routine shell for a subject. Versions carry the
// actual content.
func (h *Handler) CreateRoutine(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))

	var req CreateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}
	// The URL owns the subject. A body subject_id is accepted only when it
	// agrees, so a mispasted body fails instead of silently creating the
	// routine under a different subject than the client intended.
	if req.SubjectID != "" && req.SubjectID != string(subjectID) {
		writeError(w, http.StatusBadRequest, "Body subject_id does not match URL", nil)
		return
	}

	subj, err := h.Store.GetSubject(r.Context(), subjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get subject", err)
		return
	}
	if subj == nil {
		writeError(w, http.StatusNotFound, "Subject not found", nil)
		return
	}

	rt := routine.Routine{
		ID:          engine.RoutineID(uuid.NewString()),
		SubjectID:   subjectID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.Store.SaveRoutine(r.Context(), rt); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save routine", err)
		return
	}
	writeJSON(w, http.StatusCreated, routineDTO(rt))
}

// ListRoutines returns the subject's routines.
func (h *Handler) ListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := h.Store.RoutinesForSubject(r.Context(), engine.SubjectID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list routines", err)
		return
	}

	dtos := make([]RoutineDTO, len(routines))
	for i, rt := range routines {
		dtos[i] = routineDTO(rt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRoutine returns one routine.
func (h *Handler) GetRoutine(w http.ResponseWriter, r *http.Request) {
	rt, err := h.Store.GetRoutine(r.Context(), engine.RoutineID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get routine", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "Routine not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, routineDTO(*rt))
}

// ListVersions returns the routine's full version history.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.Store.VersionsForRoutine(r.Context(), engine.RoutineID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list versions", err)
		return
	}

	dtos := make([]VersionDTO, len(versions))
	for i, v := range versions {
		dtos[i] = versionDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVersion authors a new routine version. Closing the previous version
// and writing the new content happens atomically.
func (h *Handler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	routineID := engine.RoutineID(chi.URLParam(r, "id"))

	var req CreateVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	startDate, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	rt, err := h.Store.GetRoutine(r.Context(), routineID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get routine", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "Routine not found", nil)
		return
	}

	cards := make([]routine.CardSpec, len(req.Cards))
	for i, c := range req.Cards {
		spec, err := cardSpecFromDTO(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid card spec", err)
			return
		}
		cards[i] = spec
	}

	version, err := h.Versions.CreateNewVersion(r.Context(), routineID, startDate, cards, req.Notes, req.CreatedBy)
	if err != nil {
		writeDomainError(w, "Failed to create version", err)
		return
	}
	writeJSON(w, http.StatusCreated, versionDTO(*version))
}

// RoutineDay returns the resolved day view for one routine.
func (h *Handler) RoutineDay(w http.ResponseWriter, r *http.Request) {
	routineID := engine.RoutineID(chi.URLParam(r, "id"))
	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}

	items, err := h.Resolver.ActiveItems(r.Context(), routineID, date)
	if err != nil {
		writeDomainError(w, "Failed to resolve day view", err)
		return
	}
	writeJSON(w, http.StatusOK, activeItemDTOs(items))
}

// SupersedeItem replaces one item mid-version, closing the predecessor at
// effective_date-1 with no coverage gap.
func (h *Handler) SupersedeItem(w http.ResponseWriter, r *http.Request) {
	itemID := engine.ItemID(chi.URLParam(r, "id"))

	var req SupersedeItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	effectiveDate, err := engine.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date format (use YYYY-MM-DD)", err)
		return
	}
	spec, err := itemSpecFromDTO(req.Item)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item spec", err)
		return
	}

	item, err := h.Versions.SupersedeItem(r.Context(), itemID, spec, effectiveDate)
	if err != nil {
		writeDomainError(w, "Failed to supersede item", err)
		return
	}
	writeJSON(w, http.StatusCreated, activeItemDTO(routine.ActiveItem{Item: *item}))
}

// =============================================================================
// TRACKING HANDLERS
// =============================================================================

// RecordCompletion records or overwrites the day fact for an item or habit.
func (h *Handler) RecordCompletion(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))

	var req RecordCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "item_id is required", nil)
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	entry := tracking.Entry{
		SubjectID:  subjectID,
		ItemID:     engine.ItemID(req.ItemID),
		Date:       date,
		Completed:  req.Completed,
		SkipReason: req.SkipReason,
		Notes:      req.Notes,
	}
	if req.Value != nil {
		v := decimal.NewFromFloat(*req.Value)
		entry.Value = &v
	}

	rec, err := h.Ledger.Record(r.Context(), entry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record completion", err)
		return
	}
	writeJSON(w, http.StatusCreated, completionDTO(rec))
}

// ListCompletions returns the subject's records for the requested date.
func (h *Handler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))

	date, err := engine.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date query param (use YYYY-MM-DD)", err)
		return
	}

	records, err := h.Ledger.CompletionsForDate(r.Context(), subjectID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list completions", err)
		return
	}
	writeJSON(w, http.StatusOK, completionDTOs(records))
}

// ItemHistory returns the full record history for one item or habit.
func (h *Handler) ItemHistory(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))
	itemID := engine.ItemID(chi.URLParam(r, "itemID"))

	records, err := h.Ledger.History(r.Context(), subjectID, itemID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get history", err)
		return
	}
	writeJSON(w, http.StatusOK, completionDTOs(records))
}

// =============================================================================
// HABIT HANDLERS
// =============================================================================

// CreateHabit creates a habit for a subject.
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))

	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	habitType := habit.Type(req.Type)
	if habitType == "" {
		habitType = habit.TypeBoolean
	}
	if habitType != habit.TypeBoolean && habitType != habit.TypeNumeric {
		writeError(w, http.StatusBadRequest, "Unknown habit type", nil)
		return
	}

	category := engine.Category(req.Category)
	if category == "" {
		category = engine.CategoryHabit
	}

	freq := frequencyFromDTO(req.Frequency, req.Weekdays)
	if err := freq.Validate(); err != nil {
		writeDomainError(w, "Invalid frequency", err)
		return
	}

	hb := habit.Habit{
		ID:        engine.HabitID(uuid.NewString()),
		SubjectID: subjectID,
		Name:      req.Name,
		Type:      habitType,
		Unit:      req.Unit,
		Category:  category,
		Frequency: freq,
		Active:    true,
	}
	if req.TargetValue != nil {
		t := decimal.NewFromFloat(*req.TargetValue)
		hb.TargetValue = &t
	}
	if req.Active != nil {
		hb.Active = *req.Active
	}

	if err := h.Store.SaveHabit(r.Context(), hb); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save habit", err)
		return
	}
	writeJSON(w, http.StatusCreated, habitDTO(hb))
}

// ListHabits returns the subject's habits.
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := h.Store.HabitsForSubject(r.Context(), engine.SubjectID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list habits", err)
		return
	}

	dtos := make([]HabitDTO, len(habits))
	for i, hb := range habits {
		dtos[i] = habitDTO(hb)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetHabit returns one habit.
func (h *Handler) GetHabit(w http.ResponseWriter, r *http.Request) {
	hb, err := h.Store.GetHabit(r.Context(), engine.HabitID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get habit", err)
		return
	}
	if hb == nil {
		writeError(w, http.StatusNotFound, "Habit not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, habitDTO(*hb))
}

// GetStreak recomputes the habit's streak from the ledger and persists the
// derived state. The ledger stays the source of truth.
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	hb, err := h.Store.GetHabit(r.Context(), engine.HabitID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get habit", err)
		return
	}
	if hb == nil {
		writeError(w, http.StatusNotFound, "Habit not found", nil)
		return
	}

	subj, err := h.Store.GetSubject(r.Context(), hb.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get subject", err)
		return
	}
	if subj == nil {
		writeError(w, http.StatusNotFound, "Subject not found", nil)
		return
	}

	state, err := h.Streaks.Recompute(r.Context(), *hb, *subj)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute streak", err)
		return
	}
	if err := h.Store.SaveState(r.Context(), state); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save streak state", err)
		return
	}
	writeJSON(w, http.StatusOK, streakDTO(state))
}

// =============================================================================
// SCORING & SNAPSHOT HANDLERS
// =============================================================================

// GetScore computes the subject's adherence for one day. Pure read, nothing
// is persisted.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))
	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}

	score, err := h.Scorer.ScoreDay(r.Context(), subjectID, date)
	if err != nil {
		writeDomainError(w, "Failed to compute score", err)
		return
	}
	writeJSON(w, http.StatusOK, scoreDTO(score))
}

// GetSnapshot builds (or returns the frozen) daily snapshot.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	subjectID := engine.SubjectID(chi.URLParam(r, "id"))
	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}

	snap, err := h.Builder.Build(r.Context(), subjectID, date)
	if err != nil {
		writeDomainError(w, "Failed to build snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotDTO(snap))
}

// RebuildSnapshot force-rebuilds a snapshot, overwriting the frozen copy.
// Admin path for data corrections.
func (h *Handler) RebuildSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID string `json:"subject_id"`
		Date      string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	snap, err := h.Builder.Rebuild(r.Context(), engine.SubjectID(req.SubjectID), date)
	if err != nil {
		writeDomainError(w, "Failed to rebuild snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotDTO(snap))
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func subjectDTO(s engine.Subject) SubjectDTO {
	return SubjectDTO{ID: string(s.ID), Name: s.Name, TimeZone: s.TimeZone}
}

func routineDTO(rt routine.Routine) RoutineDTO {
	return RoutineDTO{
		ID:          string(rt.ID),
		SubjectID:   string(rt.SubjectID),
		Name:        rt.Name,
		Description: rt.Description,
	}
}

func versionDTO(v routine.RoutineVersion) VersionDTO {
	return VersionDTO{
		ID:        string(v.ID),
		RoutineID: string(v.RoutineID),
		Number:    v.Number,
		StartDate: v.StartDate.String(),
		EndDate:   dateString(v.EndDate),
		CreatedBy: v.CreatedBy,
		Notes:     v.Notes,
	}
}

func activeItemDTO(ai routine.ActiveItem) ActiveItemDTO {
	return ActiveItemDTO{
		ID:           string(ai.Item.ID),
		Moment:       string(ai.Moment),
		Type:         string(ai.Item.Type),
		Name:         ai.Item.Name,
		Dosage:       ai.Item.Dosage,
		Instructions: ai.Item.Instructions,
		ValidFrom:    ai.Item.Window.ValidFrom.String(),
		ValidUntil:   dateString(ai.Item.Window.EffectiveUntil()),
		SortOrder:    ai.Item.SortOrder,
	}
}

func activeItemDTOs(items []routine.ActiveItem) []ActiveItemDTO {
	dtos := make([]ActiveItemDTO, len(items))
	for i, ai := range items {
		dtos[i] = activeItemDTO(ai)
	}
	return dtos
}

func completionDTO(rec tracking.CompletionRecord) CompletionDTO {
	dto := CompletionDTO{
		ID:         rec.ID,
		SubjectID:  string(rec.SubjectID),
		ItemID:     string(rec.ItemID),
		Date:       rec.Date.String(),
		Completed:  rec.Completed,
		SkipReason: rec.SkipReason,
		Notes:      rec.Notes,
		RecordedAt: rec.RecordedAt.UTC().Format(time.RFC3339),
	}
	if rec.Value != nil {
		v, _ := rec.Value.Float64()
		dto.Value = &v
	}
	return dto
}

func completionDTOs(records []tracking.CompletionRecord) []CompletionDTO {
	dtos := make([]CompletionDTO, len(records))
	for i, rec := range records {
		dtos[i] = completionDTO(rec)
	}
	return dtos
}

func habitDTO(hb habit.Habit) HabitDTO {
	dto := HabitDTO{
		ID:        string(hb.ID),
		SubjectID: string(hb.SubjectID),
		Name:      hb.Name,
		Type:      string(hb.Type),
		Unit:      hb.Unit,
		Category:  string(hb.Category),
		Frequency: string(hb.Frequency.Rule),
		Active:    hb.Active,
	}
	if hb.TargetValue != nil {
		t, _ := hb.TargetValue.Float64()
		dto.TargetValue = &t
	}
	for _, wd := range hb.Frequency.Weekdays {
		dto.Weekdays = append(dto.Weekdays, int(wd))
	}
	return dto
}

func streakDTO(st habit.StreakState) StreakDTO {
	return StreakDTO{
		SubjectID:     string(st.SubjectID),
		HabitID:       string(st.HabitID),
		Current:       st.Current,
		Longest:       st.Longest,
		LastCompleted: dateString(st.LastCompleted),
	}
}

func scoreDTO(s scoring.DayScore) DayScoreDTO {
	return DayScoreDTO{
		SubjectID:          string(s.SubjectID),
		Date:               s.Date.String(),
		RoutineScore:       s.RoutineScore,
		HabitScore:         s.HabitScore,
		ExerciseScore:      s.ExerciseScore,
		DailyScore:         s.DailyScore,
		RoutinesCompleted:  s.RoutinesCompleted,
		RoutinesTotal:      s.RoutinesTotal,
		HabitsCompleted:    s.HabitsCompleted,
		HabitsTotal:        s.HabitsTotal,
		ExercisesCompleted: s.ExercisesCompleted,
		ExercisesTotal:     s.ExercisesTotal,
	}
}

func snapshotDTO(s snapshot.DailySnapshot) SnapshotDTO {
	return SnapshotDTO{
		SubjectID:         string(s.SubjectID),
		Date:              s.Date.String(),
		RoutineScore:      s.RoutineScore,
		HabitScore:        s.HabitScore,
		ExerciseScore:     s.ExerciseScore,
		DailyScore:        s.DailyScore,
		RoutinesCompleted: s.RoutinesCompleted,
		RoutinesTotal:     s.RoutinesTotal,
		HabitsCompleted:   s.HabitsCompleted,
		HabitsTotal:       s.HabitsTotal,
		CurrentStreak:     s.CurrentStreak,
	}
}

func cardSpecFromDTO(c CardSpecDTO) (routine.CardSpec, error) {
	spec := routine.CardSpec{
		Moment:    engine.Moment(c.Moment),
		SortOrder: c.SortOrder,
	}
	for _, it := range c.Items {
		itemSpec, err := itemSpecFromDTO(it)
		if err != nil {
			return routine.CardSpec{}, err
		}
		spec.Items = append(spec.Items, itemSpec)
	}
	return spec, nil
}

func itemSpecFromDTO(it ItemSpecDTO) (routine.ItemSpec, error) {
	spec := routine.ItemSpec{
		Type:         engine.ItemType(it.Type),
		Name:         it.Name,
		Dosage:       it.Dosage,
		Instructions: it.Instructions,
		Frequency:    frequencyFromDTO(it.Frequency, it.Weekdays),
		DurationDays: it.DurationDays,
		SortOrder:    it.SortOrder,
	}
	if it.ValidUntil != nil {
		until, err := engine.ParseDate(*it.ValidUntil)
		if err != nil {
			return routine.ItemSpec{}, err
		}
		spec.ValidUntil = &until
	}
	return spec, nil
}

func frequencyFromDTO(rule string, weekdays []int) engine.Frequency {
	f := engine.Frequency{Rule: engine.FrequencyRule(rule)}
	if f.Rule == "" {
		f.Rule = engine.FrequencyDaily
	}
	for _, wd := range weekdays {
		f.Weekdays = append(f.Weekdays, time.Weekday(wd))
	}
	return f
}

func dateString(d *engine.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (engine.Date, bool) {
	date, err := engine.ParseDate(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return engine.Date{}, false
	}
	return date, true
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsConstructionError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case engine.IsInvariantViolation(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
