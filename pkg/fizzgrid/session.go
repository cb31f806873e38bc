package fizzgrid

import (
	"context"

	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
)

// Session tracks the authenticated viewer through the ["active-profile"]
// query. An anonymous session simply has no viewer.
type Session struct {
	client *Client
	viewer *cache.Query[Profile]
}

// Session subscribes to the viewer. The returned Session must be closed.
func (c *Client) Session(ctx context.Context) *Session {
	q := cache.ReadQuery(ctx, c.cache, ActiveProfileKey, c.FetchViewer, cache.WithRetry(c.cfg.ViewerRetry))
	return &Session{client: c, viewer: q}
}

// Viewer returns the viewer's profile id when someone is logged in.
func (s *Session) Viewer() (int64, bool) {
	p, ok := s.viewer.Data()
	if !ok {
		return 0, false
	}
	return p.ID, true
}

// Profile returns the viewer's profile.
func (s *Session) Profile() (Profile, bool) {
	return s.viewer.Data()
}

// IsLoading is true until the first viewer fetch resolves.
func (s *Session) IsLoading() bool {
	return s.viewer.State().IsLoading()
}

// Err is the last viewer fetch error. For an anonymous session this is the
// server's "not authenticated" detail.
func (s *Session) Err() error {
	return s.viewer.State().Err
}

// Await blocks until the viewer query has resolved.
func (s *Session) Await(ctx context.Context) (Profile, bool, error) {
	st, err := s.viewer.Await(ctx)
	if err != nil {
		return Profile{}, false, err
	}
	p, ok := cache.DataOf[Profile](st)
	return p, ok, nil
}

// PromptLogin raises the client's login prompt, if one is configured.
func (s *Session) PromptLogin() {
	s.client.logger.Debug().Msg("Login required.")
	if s.client.prompter != nil {
		s.client.prompter.PromptLogin()
	}
}

// Query exposes the underlying viewer query.
func (s *Session) Query() *cache.Query[Profile] {
	return s.viewer
}

// Close releases the viewer subscription.
func (s *Session) Close() {
	s.viewer.Close()
}
