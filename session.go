package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type SessionStatus string

const (
	StatusFraming    SessionStatus = "framing"
	StatusProcessing SessionStatus = "processing"
	StatusUploading  SessionStatus = "uploading"
	StatusDone       SessionStatus = "done"
	StatusFailed     SessionStatus = "failed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Session is one user framing one photo. Gestures are accepted only while
// framing; once committed the transform is frozen.
type Session struct {
	ID    string
	File  string
	Class AssetClass
	Asset ImageAsset

	mu       sync.Mutex
	reducer  *GestureReducer
	status   SessionStatus
	result   *CompressionResult
	location string
	err      error
}

type SessionView struct {
	ID       string             `json:"id"`
	File     string             `json:"file"`
	Class    string             `json:"class"`
	Image    ImageInfo          `json:"image"`
	Frame    CropFrameProfile   `json:"frame"`
	MinScale float64            `json:"min_scale"`
	MaxScale float64            `json:"max_scale"`
	State    TransformState     `json:"state"`
	Rect     CropRect           `json:"rect"`
	Status   SessionStatus      `json:"status"`
	Result   *CompressionResult `json:"result,omitempty"`
	Degraded bool               `json:"degraded,omitempty"`
	Location string             `json:"location,omitempty"`
	Error    string             `json:"error,omitempty"`
}

func newSession(file string, asset ImageAsset, class AssetClass) *Session {
	policy := NewClampPolicy(class.Frame, asset.PixelWidth, asset.PixelHeight)
	return &Session{
		ID:      uuid.NewString(),
		File:    file,
		Class:   class,
		Asset:   asset,
		reducer: NewGestureReducer(policy),
		status:  StatusFraming,
	}
}

// ApplyGestures feeds events to the reducer in order.
func (s *Session) ApplyGestures(events []GestureEvent) (TransformState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusFraming:
	case StatusProcessing, StatusUploading:
		return TransformState{}, ErrSessionBusy
	default:
		return TransformState{}, ErrSessionClosed
	}
	return s.reducer.ApplyAll(events), nil
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.reducer.State()
	policy := s.reducer.Policy()
	v := SessionView{
		ID:       s.ID,
		File:     s.File,
		Class:    s.Class.ID,
		Image:    ImageInfo{Width: s.Asset.PixelWidth, Height: s.Asset.PixelHeight},
		Frame:    s.Class.Frame,
		MinScale: policy.MinScale(),
		MaxScale: policy.MaxScale(),
		State:    state,
		Rect:     ResolveCropRect(state, s.Class.Frame, s.Asset.PixelWidth, s.Asset.PixelHeight),
		Status:   s.status,
		Result:   s.result,
		Location: s.location,
	}
	if s.result != nil {
		v.Degraded = s.result.Degraded(s.Class.Budget)
	}
	if s.err != nil {
		v.Error = s.err.Error()
	}
	return v
}

// begin freezes gestures and returns the transform to process.
func (s *Session) begin() (TransformState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusFraming:
		s.status = StatusProcessing
		return s.reducer.State(), nil
	case StatusProcessing, StatusUploading:
		return TransformState{}, ErrSessionBusy
	}
	return TransformState{}, ErrSessionClosed
}

// startUpload moves a processed session to uploading. It reports false when
// the session was abandoned while the pipeline ran.
func (s *Session) startUpload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusAbandoned {
		return false
	}
	s.status = StatusUploading
	return true
}

// finish records the outcome and reports whether it was kept. The encoded
// bytes are not retained; the view only reports sizes and the location.
func (s *Session) finish(result *CompressionResult, location string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusAbandoned {
		return false
	}
	if err != nil {
		s.status, s.err = StatusFailed, err
		return true
	}
	kept := *result
	kept.Asset = Asset{Format: result.Asset.Format}
	s.status, s.result, s.location = StatusDone, &kept, location
	return true
}

// SessionStore owns the live sessions and the pipeline runs they start.
type SessionStore struct {
	Pipeline *Pipeline
	Uploader Uploader
	// OnFinish, when set, is called after a run completes for a session
	// that was not abandoned.
	OnFinish func(SessionView)

	mu       sync.RWMutex
	sessions map[string]*Session
	runs     conc.WaitGroup
}

func NewSessionStore(pipeline *Pipeline, uploader Uploader) *SessionStore {
	return &SessionStore{
		Pipeline: pipeline,
		Uploader: uploader,
		sessions: make(map[string]*Session),
	}
}

func (st *SessionStore) Create(file string, asset ImageAsset, class AssetClass) *Session {
	s := newSession(file, asset, class)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Abandon forgets the session. A pipeline run already in flight is left to
// finish, but its result is dropped instead of uploaded.
func (st *SessionStore) Abandon(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	s.status = StatusAbandoned
	s.result = nil
	s.mu.Unlock()
	return nil
}

// Commit freezes the session and runs the pipeline in the background. ctx
// must outlive the request that triggered the commit.
func (st *SessionStore) Commit(ctx context.Context, id string) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	state, err := s.begin()
	if err != nil {
		return err
	}

	logger := log.Ctx(ctx).With().Str("session", s.ID).Str("class", s.Class.ID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Stringer("state", state).Msg("processing session")

	st.runs.Go(func() {
		if st.complete(ctx, s, state) && st.OnFinish != nil {
			st.OnFinish(s.View())
		}
	})
	return nil
}

func (st *SessionStore) complete(ctx context.Context, s *Session, state TransformState) bool {
	logger := log.Ctx(ctx)

	result, err := st.Pipeline.Run(ctx, s.Asset, state, s.Class)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline failed")
		return s.finish(nil, "", err)
	}
	if !s.startUpload() {
		logger.Warn().Msg("session abandoned, discarding result")
		return false
	}

	location, err := st.Uploader.Upload(ctx, s.File, result.Asset)
	if err != nil {
		logger.Error().Err(err).Msg("upload failed")
		return s.finish(nil, "", err)
	}
	if !s.finish(result, location, nil) {
		logger.Warn().Str("location", location).Msg("session abandoned during upload, removing asset")
		st.retract(ctx, location)
		return false
	}
	return true
}

// retract takes back an upload that belongs to an abandoned session.
func (st *SessionStore) retract(ctx context.Context, location string) {
	remover, ok := st.Uploader.(Remover)
	if !ok {
		log.Ctx(ctx).Error().Str("location", location).Msg("uploader cannot remove assets, abandoned asset kept")
		return
	}
	if err := remover.Remove(ctx, location); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("location", location).Msg("failed to remove abandoned asset")
	}
}

// Wait blocks until every started pipeline run has returned.
func (st *SessionStore) Wait() {
	st.runs.Wait()
}
