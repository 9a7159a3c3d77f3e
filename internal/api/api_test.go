package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass/internal/apperr"
	"liveclass/internal/attendance"
	"liveclass/internal/auth"
	"liveclass/internal/identity"
	"liveclass/internal/realtime"
	"liveclass/internal/session"
)

func init() { gin.SetMode(gin.TestMode) }

// Stubs embed the interface so only the methods a test needs are implemented.

type stubIdentity struct {
	Identity
	signIn   func(email, password string, role auth.Role) (identity.SignInResult, error)
	register func(in identity.RegisterInput) (identity.Profile, error)
}

func (s stubIdentity) SignIn(_ context.Context, email, password string, role auth.Role) (identity.SignInResult, error) {
	return s.signIn(email, password, role)
}

func (s stubIdentity) Register(_ context.Context, in identity.RegisterInput) (identity.Profile, error) {
	return s.register(in)
}

type stubSessions struct {
	Sessions
	joinCourse func(p auth.Principal, courseID string) (session.JoinResult, error)
	join       func(p auth.Principal, sessionID string) (session.Participant, error)
	listActive func(sessionID string) ([]session.ActiveParticipant, error)
}

func (s stubSessions) Join(_ context.Context, p auth.Principal, sessionID string) (session.Participant, error) {
	return s.join(p, sessionID)
}

func (s stubSessions) JoinCourse(_ context.Context, p auth.Principal, courseID string) (session.JoinResult, error) {
	return s.joinCourse(p, courseID)
}

func (s stubSessions) Get(_ context.Context, id string) (session.Session, error) {
	if id == "missing" {
		return session.Session{}, apperr.ErrNotFound
	}
	return session.Session{ID: id, Status: session.StatusLive}, nil
}

func (s stubSessions) ListActive(_ context.Context, sessionID string) ([]session.ActiveParticipant, error) {
	return s.listActive(sessionID)
}

type stubAttendance struct {
	Attendance
	records  []attendance.Record
	bulk     func(sessionID string, entries []attendance.Entry) error
	marked   []attendance.MarkInput
	listFail error
}

func (s *stubAttendance) List(context.Context, string) ([]attendance.Record, error) {
	return s.records, s.listFail
}

func (s *stubAttendance) MarkBulk(_ context.Context, _ auth.Principal, sessionID string, entries []attendance.Entry) error {
	return s.bulk(sessionID, entries)
}

func (s *stubAttendance) Mark(_ context.Context, p auth.Principal, in attendance.MarkInput) (attendance.Record, error) {
	s.marked = append(s.marked, in)
	return attendance.Record{SessionID: in.SessionID, StudentID: in.StudentID, Status: in.Status, MarkedBy: p.UserID}, nil
}

var tokens = auth.Tokens{Issuer: "test", Key: "test-key", AccessTTL: time.Minute, RefreshTTL: time.Hour}

func bearerFor(t *testing.T, p auth.Principal) string {
	t.Helper()
	pair, err := tokens.Issue(p)
	require.NoError(t, err)
	return pair.AccessToken
}

var (
	teacher = auth.Principal{UserID: "T1", Role: auth.RoleTeacher}
	student = auth.Principal{UserID: "S1", Role: auth.RoleStudent}
)

func newTestRouter(d Deps) *gin.Engine {
	d.Tokens = tokens
	if d.Broker == nil {
		d.Broker = realtime.NewInMemory()
	}
	return NewRouter(d)
}

func do(t *testing.T, r http.Handler, method, path, body string, as *auth.Principal) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+bearerFor(t, *as))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestHealthz(t *testing.T) {
	up := func(context.Context) bool { return true }
	down := func(context.Context) bool { return false }

	r := newTestRouter(Deps{Health: map[string]HealthCheck{"db": up, "redis": up}})
	w, body := do(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["db"])

	r = newTestRouter(Deps{Health: map[string]HealthCheck{"db": up, "redis": down}})
	w, body = do(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, body["redis"])
}

func TestAuthenticationRequired(t *testing.T) {
	r := newTestRouter(Deps{})
	w, body := do(t, r, http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(apperr.KindAuthentication), body["kind"])
}

func TestSignInRoleMismatch(t *testing.T) {
	var gotRole auth.Role
	r := newTestRouter(Deps{Identity: stubIdentity{signIn: func(_, _ string, role auth.Role) (identity.SignInResult, error) {
		gotRole = role
		return identity.SignInResult{}, apperr.ErrRoleMismatch
	}}})

	w, body := do(t, r, http.MethodPost, "/v1/auth/sign-in", `{"email":"s@x.io","password":"secret123","role":"teacher"}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(apperr.KindRoleMismatch), body["kind"])
	assert.Equal(t, auth.RoleTeacher, gotRole)

	w, body = do(t, r, http.MethodPost, "/v1/auth/sign-in", `{"email":"s@x.io","password":"secret123","role":"janitor"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["fields"], "role")
}

func TestRegisterValidationUsesJSONNames(t *testing.T) {
	r := newTestRouter(Deps{Identity: stubIdentity{}})

	w, body := do(t, r, http.MethodPost, "/v1/auth/register", `{"email":"nope","password":"short","first_name":"A"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "must be a valid address", fields["email"])
	assert.Equal(t, "must be at least 8", fields["password"])
	assert.Equal(t, "required", fields["last_name"])

	w, _ = do(t, r, http.MethodPost, "/v1/auth/register", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterOnlyCreatesStudents(t *testing.T) {
	var got identity.RegisterInput
	r := newTestRouter(Deps{Identity: stubIdentity{register: func(in identity.RegisterInput) (identity.Profile, error) {
		got = in
		return identity.Profile{ID: "U9", Email: in.Email, Role: in.Role}, nil
	}}})

	w, _ := do(t, r, http.MethodPost, "/v1/auth/register", `{"email":"a@x.io","password":"longenough","first_name":"A","last_name":"B","role":"admin"}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := do(t, r, http.MethodPost, "/v1/auth/register", `{"email":"a@x.io","password":"longenough","first_name":"A","last_name":"B"}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, auth.RoleStudent, got.Role)
	assert.Equal(t, "U9", body["id"])
	assert.NotContains(t, body, "PasswordHash")

	admin := auth.Principal{UserID: "A1", Role: auth.RoleAdmin}
	w, _ = do(t, r, http.MethodPost, "/v1/users", `{"email":"t@x.io","password":"longenough","first_name":"T","last_name":"R","role":"teacher"}`, &admin)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, auth.RoleTeacher, got.Role)

	w, _ = do(t, r, http.MethodPost, "/v1/users", `{"email":"t@x.io","password":"longenough","first_name":"T","last_name":"R","role":"teacher"}`, &teacher)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJoinCourseNotEnrolled(t *testing.T) {
	r := newTestRouter(Deps{Sessions: stubSessions{joinCourse: func(auth.Principal, string) (session.JoinResult, error) {
		return session.JoinResult{}, errors.Join(session.ErrNotEnrolled, apperr.ErrNotFound)
	}}})

	w, body := do(t, r, http.MethodPost, "/v1/courses/C1/join", "", &student)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_enrolled", body["kind"])
	assert.Equal(t, "enroll", body["action"])
}

func TestJoinSessionPassesPrincipal(t *testing.T) {
	var got auth.Principal
	r := newTestRouter(Deps{Sessions: stubSessions{join: func(p auth.Principal, sessionID string) (session.Participant, error) {
		got = p
		if sessionID == "DONE" {
			return session.Participant{}, fmt.Errorf("%w: %w", session.ErrSessionNotLive, apperr.ErrNotFound)
		}
		return session.Participant{}, fmt.Errorf("%w: %w", session.ErrNotEnrolled, apperr.ErrNotFound)
	}}})

	w, body := do(t, r, http.MethodPost, "/v1/sessions/SESS1/join", "", &student)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_enrolled", body["kind"])
	assert.Equal(t, student, got)

	w, body = do(t, r, http.MethodPost, "/v1/sessions/DONE/join", "", &teacher)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.KindNotFound), body["kind"])
}

func TestJoinCourse(t *testing.T) {
	r := newTestRouter(Deps{Sessions: stubSessions{joinCourse: func(p auth.Principal, courseID string) (session.JoinResult, error) {
		return session.JoinResult{
			Session:     session.Session{ID: "SESS1", CourseID: courseID, Status: session.StatusLive},
			Participant: session.Participant{ID: "P1", SessionID: "SESS1", UserID: p.UserID},
		}, nil
	}}})

	w, body := do(t, r, http.MethodPost, "/v1/courses/C1/join", "", &student)
	require.Equal(t, http.StatusOK, w.Code)
	sess := body["session"].(map[string]any)
	assert.Equal(t, "SESS1", sess["id"])
	assert.Equal(t, "C1", sess["course_id"])
	assert.Equal(t, "S1", body["participant"].(map[string]any)["user_id"])
}

func TestMarkAttendanceRequiresStaff(t *testing.T) {
	att := &stubAttendance{}
	r := newTestRouter(Deps{Attendance: att})

	w, body := do(t, r, http.MethodPut, "/v1/sessions/SESS1/attendance/S1", `{"status":"present"}`, &student)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(apperr.KindRoleMismatch), body["kind"])
	assert.Empty(t, att.marked)

	w, body = do(t, r, http.MethodPut, "/v1/sessions/SESS1/attendance/S1", `{"status":"present","notes":"ok"}`, &teacher)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T1", body["marked_by"])
	require.Len(t, att.marked, 1)
	assert.Equal(t, attendance.MarkInput{SessionID: "SESS1", StudentID: "S1", Status: attendance.StatusPresent, Notes: "ok"}, att.marked[0])
}

func TestMarkBulkAttendance(t *testing.T) {
	var gotSession string
	var gotEntries []attendance.Entry
	att := &stubAttendance{bulk: func(sessionID string, entries []attendance.Entry) error {
		gotSession, gotEntries = sessionID, entries
		return nil
	}}
	r := newTestRouter(Deps{Attendance: att})

	w, body := do(t, r, http.MethodPost, "/v1/sessions/SESS1/attendance", `{"records":[{"student_id":"S1"}]}`, &teacher)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["fields"], "records[0].status")

	w, _ = do(t, r, http.MethodPost, "/v1/sessions/SESS1/attendance", `{"records":[]}`, &teacher)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rows := make([]string, attendance.MaxBulkRecords+1)
	for i := range rows {
		rows[i] = fmt.Sprintf(`{"student_id":"S%d","status":"present"}`, i)
	}
	w, body = do(t, r, http.MethodPost, "/v1/sessions/SESS1/attendance", `{"records":[`+strings.Join(rows, ",")+`]}`, &teacher)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["fields"], "records")
	assert.Empty(t, gotSession)

	w, body = do(t, r, http.MethodPost, "/v1/sessions/SESS1/attendance",
		`{"records":[{"student_id":"S1","status":"present"},{"student_id":"S2","status":"late","notes":"bus"}]}`, &teacher)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["marked"])
	assert.Equal(t, "SESS1", gotSession)
	assert.Equal(t, []attendance.Entry{
		{StudentID: "S1", Status: attendance.StatusPresent},
		{StudentID: "S2", Status: attendance.StatusLate, Notes: "bus"},
	}, gotEntries)
}

func TestAttendanceListScopedForStudents(t *testing.T) {
	att := &stubAttendance{records: []attendance.Record{
		{SessionID: "SESS1", StudentID: "S1", Status: attendance.StatusPresent},
		{SessionID: "SESS1", StudentID: "S2", Status: attendance.StatusAbsent},
	}}
	r := newTestRouter(Deps{Attendance: att})

	_, body := do(t, r, http.MethodGet, "/v1/sessions/SESS1/attendance", "", &student)
	assert.Len(t, body["records"], 1)

	_, body = do(t, r, http.MethodGet, "/v1/sessions/SESS1/attendance", "", &teacher)
	assert.Len(t, body["records"], 2)
}

func TestBackendFailureIsGeneric(t *testing.T) {
	att := &stubAttendance{listFail: apperr.Backend("list attendance", errors.New("pq: relation does not exist"))}
	r := newTestRouter(Deps{Attendance: att})

	w, body := do(t, r, http.MethodGet, "/v1/sessions/SESS1/attendance", "", &teacher)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(apperr.KindBackend), body["kind"])
	assert.NotContains(t, body["error"], "relation")
}

func TestSystemInfo(t *testing.T) {
	r := newTestRouter(Deps{
		Version: "1.2.3",
		Started: time.Now().Add(-time.Minute),
		Health:  map[string]HealthCheck{"db": func(context.Context) bool { return true }},
	})
	w, body := do(t, r, http.MethodGet, "/v1/system/info", "", &student)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, true, body["healthy"])
	assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), float64(59))
}

func TestParticipantsStream(t *testing.T) {
	broker := realtime.NewInMemory()
	calls := 0
	r := newTestRouter(Deps{
		Broker: broker,
		Sessions: stubSessions{listActive: func(string) ([]session.ActiveParticipant, error) {
			calls++
			list := []session.ActiveParticipant{}
			for i := 0; i < calls; i++ {
				list = append(list, session.ActiveParticipant{Participant: session.Participant{ID: "p", SessionID: "SESS1"}})
			}
			return list, nil
		}},
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/SESS1/participants/stream?access_token=" + bearerFor(t, student)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() snapshotFrame {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f snapshotFrame
		require.NoError(t, ws.ReadJSON(&f))
		return f
	}

	first := read()
	assert.Equal(t, "participants", first.Type)
	assert.Len(t, first.Data, 1)

	require.Eventually(t, func() bool { return broker.Subscribers("session_participants") > 0 }, time.Second, 10*time.Millisecond)

	other := json.RawMessage(`{"session_id":"OTHER"}`)
	require.NoError(t, broker.Publish(context.Background(), realtime.Change{Table: "session_participants", Type: realtime.Insert, New: other}))
	mine := json.RawMessage(`{"session_id":"SESS1","user_id":"S2"}`)
	require.NoError(t, broker.Publish(context.Background(), realtime.Change{Table: "session_participants", Type: realtime.Insert, New: mine}))

	second := read()
	assert.Len(t, second.Data, 2, "only the change for this session triggers a refetch")
}

type snapshotFrame struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
}

func TestStreamUnknownSession(t *testing.T) {
	r := newTestRouter(Deps{Sessions: stubSessions{}})
	w, _ := do(t, r, http.MethodGet, "/v1/sessions/missing/participants/stream", "", &student)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
