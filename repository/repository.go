// Package repository keeps the pledge wall: an ordered list of pledges,
// newest first, persisted as one JSON document under a single key.
package repository

import (
	"commitment-wall/models"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	dateLayout      = "Jan 2, 2006"
	timestampLayout = "2006-01-02T15:04:05.000Z"

	defaultVideoName = "video.mp4"
)

// Store is the key-value store the list is persisted in.
type Store interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
}

// Draft is a pledge as captured by the form, before it gets an id and passcode.
// The AI fields are optional; defaults fill whatever is empty.
type Draft struct {
	Name          string
	Company       string
	Email         string
	Message       string
	Category      models.Category
	InputMethod   models.InputMethod
	VideoName     string
	VideoData     string
	AICategory    string
	AISentiment   string
	AIImpactScore string
}

// Patch holds the editable fields of a pledge.
type Patch struct {
	Name     string          `json:"name"`
	Company  string          `json:"company"`
	Email    string          `json:"email"`
	Message  string          `json:"message"`
	Category models.Category `json:"category"`
}

// Stats are the wall's two counters.
type Stats struct {
	Count       int `json:"count"`
	TotalImpact int `json:"totalImpact"`
}

// Repository owns the in-memory list and its persisted copy.
type Repository struct {
	store Store
	key   string

	mu      sync.RWMutex
	pledges []models.Pledge
	loaded  bool

	now      func() time.Time
	intN     func(n int) int
	randomID func() string
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the time source used for ids and dates.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIntN sets the random source used for passcodes.
func WithIntN(intN func(n int) int) Option {
	return func(r *Repository) { r.intN = intN }
}

// New returns a Repository persisting under key in store. Nothing is read
// until the first call that needs the list.
func New(store Store, key string, opts ...Option) *Repository {
	r := &Repository{
		store:    store,
		key:      key,
		now:      time.Now,
		intN:     rand.Intn,
		randomID: randomIDPart,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load (re)reads the persisted list, replacing the in-memory copy. An
// absent or empty entry is an empty wall.
func (r *Repository) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *Repository) load(ctx context.Context) error {
	raw, ok, err := r.store.GetItem(ctx, r.key)
	if err != nil {
		return fmt.Errorf("failed to load pledges: %w", err)
	}

	pledges := []models.Pledge{}
	raw = strings.TrimSpace(raw)
	if ok && raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &pledges); err != nil {
			return fmt.Errorf("failed to decode pledges stored under '%s': %w", r.key, err)
		}
	}

	r.pledges = pledges
	r.loaded = true
	return nil
}

func (r *Repository) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	return r.load(ctx)
}

func (r *Repository) save(ctx context.Context, pledges []models.Pledge) error {
	data, err := json.Marshal(pledges)
	if err != nil {
		return fmt.Errorf("failed to encode pledges: %w", err)
	}
	if err := r.store.SetItem(ctx, r.key, string(data)); err != nil {
		return fmt.Errorf("failed to save pledges: %w", err)
	}
	r.pledges = pledges
	return nil
}

// List returns every pledge, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Pledge, error) {
	r.mu.RLock()
	if r.loaded {
		out := clonePledges(r.pledges)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return clonePledges(r.pledges), nil
}

// Get returns the pledge with id.
func (r *Repository) Get(ctx context.Context, id string) (models.Pledge, error) {
	pledges, err := r.List(ctx)
	if err != nil {
		return models.Pledge{}, err
	}
	for _, p := range pledges {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Pledge{}, ErrNotFound
}

// Create validates draft, assigns id, passcode and dates, and puts the
// new pledge at the head of the list.
func (r *Repository) Create(ctx context.Context, draft Draft) (models.Pledge, error) {
	draft = normalizeDraft(draft)
	if err := validateDraft(draft); err != nil {
		return models.Pledge{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return models.Pledge{}, err
	}

	now := r.now()
	pledge := models.Pledge{
		ID:            r.newID(now),
		Name:          draft.Name,
		Company:       draft.Company,
		Email:         draft.Email,
		Message:       draft.Message,
		Category:      draft.Category,
		InputMethod:   draft.InputMethod,
		AICategory:    draft.AICategory,
		AISentiment:   draft.AISentiment,
		AIImpactScore: draft.AIImpactScore,
		Passcode:      r.newPasscode(),
		Date:          now.Format(dateLayout),
		Timestamp:     now.UTC().Format(timestampLayout),
	}
	if draft.InputMethod == models.InputMethodVideo {
		pledge.VideoData = draft.VideoData
	}

	next := make([]models.Pledge, 0, len(r.pledges)+1)
	next = append(next, pledge)
	next = append(next, r.pledges...)
	if err := r.save(ctx, next); err != nil {
		return models.Pledge{}, err
	}
	return pledge, nil
}

// Update overwrites the editable fields of pledge id when passcode matches
// and marks its date as edited.
func (r *Repository) Update(ctx context.Context, id, passcode string, patch Patch) (models.Pledge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return models.Pledge{}, err
	}

	idx, err := r.authorize(id, passcode)
	if err != nil {
		return models.Pledge{}, err
	}

	patch = normalizePatch(patch)
	if err := validatePatch(patch); err != nil {
		return models.Pledge{}, err
	}

	updated := r.pledges[idx]
	updated.Name = patch.Name
	updated.Company = patch.Company
	updated.Email = patch.Email
	updated.Message = patch.Message
	updated.Category = patch.Category
	updated.Date = r.now().Format(dateLayout) + models.EditedSuffix

	next := clonePledges(r.pledges)
	next[idx] = updated
	if err := r.save(ctx, next); err != nil {
		return models.Pledge{}, err
	}
	return updated, nil
}

// Delete removes pledge id when passcode matches.
func (r *Repository) Delete(ctx context.Context, id, passcode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	idx, err := r.authorize(id, passcode)
	if err != nil {
		return err
	}

	next := make([]models.Pledge, 0, len(r.pledges)-1)
	next = append(next, r.pledges[:idx]...)
	next = append(next, r.pledges[idx+1:]...)
	return r.save(ctx, next)
}

// Stats counts the pledges and sums their impact scores.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	pledges, err := r.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(pledges), nil
}

// Summarize computes Stats for pledges. Unparseable impact scores count as 0.
func Summarize(pledges []models.Pledge) Stats {
	s := Stats{Count: len(pledges)}
	for _, p := range pledges {
		s.TotalImpact += p.ImpactValue()
	}
	return s
}

// authorize finds id and checks passcode. Caller holds the lock.
func (r *Repository) authorize(id, passcode string) (int, error) {
	for i, p := range r.pledges {
		if p.ID != id {
			continue
		}
		if p.Passcode != passcode {
			return -1, ErrUnauthorized
		}
		return i, nil
	}
	return -1, ErrNotFound
}

func (r *Repository) newID(now time.Time) string {
	for {
		id := strconv.FormatInt(now.UnixMilli(), 10) + "_" + r.randomID()
		if !r.hasID(id) {
			return id
		}
	}
}

func (r *Repository) hasID(id string) bool {
	for _, p := range r.pledges {
		if p.ID == id {
			return true
		}
	}
	return false
}

// newPasscode returns a uniform 6-digit code. Passcodes are per pledge, so
// duplicates across pledges are allowed.
func (r *Repository) newPasscode() string {
	return strconv.Itoa(100000 + r.intN(900000))
}

func randomIDPart() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

func clonePledges(in []models.Pledge) []models.Pledge {
	out := make([]models.Pledge, len(in))
	copy(out, in)
	return out
}

func normalizeDraft(d Draft) Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.Company = strings.TrimSpace(d.Company)
	d.Email = strings.TrimSpace(d.Email)
	d.Message = strings.TrimSpace(d.Message)
	d.Category = models.Category(strings.TrimSpace(string(d.Category)))
	if d.InputMethod != models.InputMethodVideo {
		d.InputMethod = models.InputMethodText
		d.VideoData = ""
	}

	if d.InputMethod == models.InputMethodVideo {
		name := strings.TrimSpace(d.VideoName)
		if name == "" {
			name = defaultVideoName
		}
		d.Message = "Video Pledge - " + name
	}

	d.AICategory = strings.TrimSpace(d.AICategory)
	d.AISentiment = strings.TrimSpace(d.AISentiment)
	d.AIImpactScore = strings.TrimSpace(d.AIImpactScore)
	if d.AICategory == "" {
		d.AICategory = string(d.Category)
	}
	if d.AISentiment == "" {
		d.AISentiment = models.SentimentPositive
	}
	if d.AIImpactScore == "" {
		d.AIImpactScore = models.DefaultImpactScore
	}
	return d
}

func validateDraft(d Draft) error {
	ve := &ValidationError{}
	validateContact(ve, d.Name, d.Company, d.Email)
	switch d.InputMethod {
	case models.InputMethodVideo:
		if d.VideoData == "" {
			ve.add("Please upload a video file or switch to voice input.")
		}
	default:
		if d.Message == "" {
			ve.add("Please provide your pledge message.")
		}
	}
	validateCategory(ve, d.Category)
	validateAnnotation(ve, d)
	return ve.orNil()
}

// validateAnnotation checks a client-supplied preview. Defaults from
// normalizeDraft always pass.
func validateAnnotation(ve *ValidationError, d Draft) {
	if d.AICategory != "" && !models.Category(d.AICategory).Valid() {
		ve.add(fmt.Sprintf("Unknown AI category %q.", d.AICategory))
	}
	if !models.ValidSentiment(d.AISentiment) {
		ve.add(fmt.Sprintf("Unknown AI sentiment %q.", d.AISentiment))
	}
	if _, ok := models.ParseImpactScore(d.AIImpactScore); !ok {
		ve.add(fmt.Sprintf("AI impact score %q must look like NN/100 with NN from %d to %d.",
			d.AIImpactScore, models.MinImpactScore, models.MaxImpactScore))
	}
}

func normalizePatch(p Patch) Patch {
	p.Name = strings.TrimSpace(p.Name)
	p.Company = strings.TrimSpace(p.Company)
	p.Email = strings.TrimSpace(p.Email)
	p.Message = strings.TrimSpace(p.Message)
	p.Category = models.Category(strings.TrimSpace(string(p.Category)))
	return p
}

func validatePatch(p Patch) error {
	ve := &ValidationError{}
	validateContact(ve, p.Name, p.Company, p.Email)
	if p.Message == "" {
		ve.add("Please provide your pledge message.")
	}
	validateCategory(ve, p.Category)
	return ve.orNil()
}

func validateContact(ve *ValidationError, name, company, email string) {
	if name == "" {
		ve.add("Name is required.")
	}
	if company == "" {
		ve.add("Company is required.")
	}
	if email == "" {
		ve.add("Email is required.")
	}
}

func validateCategory(ve *ValidationError, c models.Category) {
	if c == "" {
		ve.add("Please select a category.")
		return
	}
	if !c.Valid() {
		ve.add(fmt.Sprintf("Unknown category %q.", string(c)))
	}
}
