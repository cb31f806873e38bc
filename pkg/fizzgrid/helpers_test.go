package fizzgrid_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/illmade-knight/go-fizzgrid/pkg/activity"
	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/illmade-knight/go-fizzgrid/pkg/fizzgrid"
	"github.com/illmade-knight/go-fizzgrid/pkg/toggle"
	"github.com/illmade-knight/go-fizzgrid/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	viewerID   int64 = 42
	viewerName       = "fizzfan"
	sessionID        = "session-abc"
)

// fakeAPI is an in-memory rendition of the fizzgrid REST API, enough for the
// client's reads, mutations and toggles.
type fakeAPI struct {
	mu        sync.Mutex
	hits      map[string]int
	favorites []fizzgrid.DrinkFavorite
	follows   []fizzgrid.Follow
	likes     []fizzgrid.ReviewLike
	comments  []fizzgrid.ReviewComment
	nextID    int64
	failDrink bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		hits:   make(map[string]int),
		nextID: 100,
		comments: []fizzgrid.ReviewComment{
			{ID: 5, CommentText: "agreed", ReviewID: 3, ProfileID: 8},
		},
	}
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[name]++
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeAPI) setFailDrink(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDrink = fail
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func idParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func queryID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id
}

func authenticated(r *http.Request) bool {
	ck, err := r.Cookie("sessionid")
	return err == nil && ck.Value == sessionID
}

func profileJSON(id int64, username, email string) map[string]any {
	return map[string]any{
		"profile": map[string]any{"id": id, "profile_img": "/img/" + username + ".png"},
		"user":    map[string]any{"username": username, "email": email},
	}
}

func (f *fakeAPI) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/drinks/drink/{id}/", func(w http.ResponseWriter, r *http.Request) {
		f.hit("drink")
		f.mu.Lock()
		fail := f.failDrink
		f.mu.Unlock()
		if fail {
			detail(w, http.StatusInternalServerError, "database exploded")
			return
		}
		id := idParam(r)
		writeJSON(w, http.StatusOK, fizzgrid.Drink{ID: id, ProductName: "Fizz " + strconv.FormatInt(id, 10), BrandName: "Pop Co"})
	})
	r.Get("/drinks/images/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"images": []fizzgrid.DrinkImage{
			{ID: 1, Label: "can", Image: "/img/can.png", DrinkID: queryID(r, "drink")},
		}})
	})
	r.Get("/drinks/favorites/", func(w http.ResponseWriter, r *http.Request) {
		f.hit("favorites")
		drink, profile := queryID(r, "drink"), queryID(r, "profile")
		f.mu.Lock()
		out := []fizzgrid.DrinkFavorite{}
		for _, fav := range f.favorites {
			if (drink != 0 && fav.DrinkID == drink) || (profile != 0 && fav.ProfileID == profile) {
				out = append(out, fav)
			}
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"favorites": out})
	})
	r.Post("/drinks/drink/{id}/favorite/", f.requireSession(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextID++
		fav := fizzgrid.DrinkFavorite{ID: f.nextID, ProfileID: viewerID, DrinkID: idParam(r)}
		f.favorites = append(f.favorites, fav)
		writeJSON(w, http.StatusCreated, fav)
	}))
	r.Delete("/drinks/drink/{id}/favorite/", f.requireSession(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		drink := idParam(r)
		kept := f.favorites[:0]
		var removed fizzgrid.DrinkFavorite
		for _, fav := range f.favorites {
			if fav.DrinkID == drink && fav.ProfileID == viewerID {
				removed = fav
				continue
			}
			kept = append(kept, fav)
		}
		f.favorites = kept
		writeJSON(w, http.StatusOK, removed)
	}))

	r.Get("/reviews/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"reviews":   []fizzgrid.Review{{ID: 3, Rating: 5, ReviewText: "great", ProfileID: 8, DrinkID: 1}},
			"num_pages": 3,
		})
	})
	r.Get("/reviews/review/{id}/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fizzgrid.Review{ID: idParam(r), Rating: 4, ReviewText: "crisp", ProfileID: 8, DrinkID: 1})
	})
	r.Get("/reviews/images/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"images": []fizzgrid.DrinkImage{}})
	})
	r.Get("/reviews/review-likes/", func(w http.ResponseWriter, r *http.Request) {
		review := queryID(r, "review")
		f.mu.Lock()
		out := []fizzgrid.ReviewLike{}
		for _, l := range f.likes {
			if l.ReviewID == review {
				out = append(out, l)
			}
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"likes": out})
	})
	r.Get("/reviews/comments/", func(w http.ResponseWriter, r *http.Request) {
		f.hit("comments")
		f.mu.Lock()
		out := append([]fizzgrid.ReviewComment{}, f.comments...)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"comments": out})
	})
	r.Post("/reviews/comment/", f.requireSession(func(w http.ResponseWriter, r *http.Request) {
		reviewID, _ := strconv.ParseInt(r.FormValue("review_id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextID++
		rc := fizzgrid.ReviewComment{ID: f.nextID, CommentText: r.FormValue("comment_text"), ReviewID: reviewID, ProfileID: viewerID}
		f.comments = append(f.comments, rc)
		writeJSON(w, http.StatusCreated, rc)
	}))
	r.Get("/reviews/comment/{id}/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fizzgrid.ReviewComment{ID: idParam(r), CommentText: "agreed", ReviewID: 3, ProfileID: 8})
	})
	r.Get("/reviews/comment-likes/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"likes": []fizzgrid.CommentLike{{ID: 1, CommentID: queryID(r, "comment"), ProfileID: 8}}})
	})

	r.Get("/profiles/profile/", func(w http.ResponseWriter, r *http.Request) {
		f.hit("viewer")
		if !authenticated(r) {
			detail(w, http.StatusForbidden, "Authentication credentials were not provided.")
			return
		}
		writeJSON(w, http.StatusOK, profileJSON(viewerID, viewerName, "fan@example.com"))
	})
	r.Delete("/profiles/profile/", f.requireSession(func(w http.ResponseWriter, r *http.Request) {
		f.hit("delete-account")
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Get("/profiles/profile/{id}/", func(w http.ResponseWriter, r *http.Request) {
		id := idParam(r)
		writeJSON(w, http.StatusOK, profileJSON(id, "user"+strconv.FormatInt(id, 10), "hidden@example.com"))
	})
	r.Post("/profiles/login/", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != "hunter2" {
			detail(w, http.StatusBadRequest, "Invalid credentials.")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: sessionID, Path: "/"})
		writeJSON(w, http.StatusOK, profileJSON(viewerID, r.FormValue("username"), "fan@example.com"))
	})
	r.Post("/profiles/logout/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/profiles/follows/", func(w http.ResponseWriter, r *http.Request) {
		f.hit("follows")
		following, follower := queryID(r, "following"), queryID(r, "follower")
		f.mu.Lock()
		out := []fizzgrid.Follow{}
		for _, fl := range f.follows {
			if (following != 0 && fl.FollowingID == following) || (follower != 0 && fl.FollowerID == follower) {
				out = append(out, fl)
			}
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"follows": out})
	})
	r.Post("/profiles/profile/{id}/follow/", f.requireSession(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextID++
		fl := fizzgrid.Follow{ID: f.nextID, FollowingID: idParam(r), FollowerID: viewerID}
		f.follows = append(f.follows, fl)
		writeJSON(w, http.StatusCreated, fl)
	}))
	return r
}

func (f *fakeAPI) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) {
			detail(w, http.StatusForbidden, "Authentication credentials were not provided.")
			return
		}
		next(w, r)
	}
}

// fakeRecorder collects activity events.
type fakeRecorder struct {
	mu     sync.Mutex
	events []activity.Event
}

func (r *fakeRecorder) Record(ev activity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *fakeRecorder) byKind(kind string) []activity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []activity.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// fakePublisher collects broadcast invalidations.
type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *fakePublisher) Publish(_ context.Context, key cache.Key, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key.String())
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type harness struct {
	api       *fakeAPI
	client    *fizzgrid.Client
	recorder  *fakeRecorder
	publisher *fakePublisher
	prompts   *atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.router())
	t.Cleanup(srv.Close)

	tcfg := transport.DefaultConfig()
	tcfg.BaseURL = srv.URL
	tc, err := transport.NewClient(tcfg, zerolog.Nop())
	require.NoError(t, err)
	tc.SetCookie("csrftoken", "token")

	qc := cache.New(&cache.Config{RetryDelay: time.Millisecond, StoreWriteTimeout: time.Second}, zerolog.Nop())
	t.Cleanup(func() { _ = qc.Close() })

	h := &harness{api: api, recorder: &fakeRecorder{}, publisher: &fakePublisher{}, prompts: new(atomic.Int32)}
	prompter := func() { h.prompts.Add(1) }
	h.client, err = fizzgrid.NewClient(nil, tc, qc, zerolog.Nop(),
		fizzgrid.WithActivityRecorder(h.recorder),
		fizzgrid.WithInvalidationPublisher(h.publisher),
		fizzgrid.WithLoginPrompter(toggle.LoginPrompterFunc(prompter)),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.client.Login().MutateSync(context.Background(), fizzgrid.LoginArgs{Username: viewerName, Password: "hunter2"})
	require.NoError(t, err)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
