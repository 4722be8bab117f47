package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"tagflow/internal/config"
	"tagflow/internal/dispatch"
	"tagflow/internal/engine"
	"tagflow/internal/notifications"
	"tagflow/internal/queue"
	"tagflow/internal/services"
	"tagflow/internal/session"
	"tagflow/internal/testsupport"
)

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []notifications.FolderStatus
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	if event != notifications.EventFolderStatus {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, payload["status"].(notifications.FolderStatus))
	return errors.New("subscriber offline")
}

type fixture struct {
	queue    *queue.Store
	sessions *session.Store
	notifier *recordingNotifier
	d        *dispatch.Dispatcher
	folder   session.Folder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	f := &fixture{
		queue:    testsupport.MustOpenQueue(t, cfg),
		sessions: testsupport.MustOpenSessions(t, cfg),
		notifier: &recordingNotifier{},
		folder:   session.Folder{Hash: "hash-1", Path: "/inbox/album"},
	}
	f.d = dispatch.New(f.queue, f.sessions,
		dispatch.WithNotifier(f.notifier),
		dispatch.WithDefaults(config.Import{GroupAlbums: true, Autotag: false, ImportThreshold: 0.3, DuplicateAction: "skip"}),
	)
	return f
}

func (f *fixture) seedSession(t *testing.T) {
	t.Helper()
	rec, err := session.NewState(f.folder).ToRecord()
	if err != nil {
		t.Fatalf("ToRecord: %v", err)
	}
	if err := f.sessions.NewScope().CommitNewRevision(context.Background(), rec); err != nil {
		t.Fatalf("CommitNewRevision: %v", err)
	}
}

func decodeArgs[P any](t *testing.T, job *queue.Job) dispatch.FolderArgs[P] {
	t.Helper()
	var args dispatch.FolderArgs[P]
	if err := json.Unmarshal(job.Args, &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	return args
}

func TestUnexpectedKwargRejectedForEveryKind(t *testing.T) {
	for _, kind := range dispatch.FolderKinds {
		t.Run(string(kind), func(t *testing.T) {
			_, err := dispatch.ParseParams(kind, dispatch.Kwargs{"bogus": 1})
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var usage *dispatch.UsageError
			if !errors.As(err, &usage) {
				t.Fatalf("expected UsageError, got %T", err)
			}
			if usage.Key != "bogus" {
				t.Fatalf("expected offending key, got %q", usage.Key)
			}
			if !slices.Equal(usage.Allowed, dispatch.AllowedKeys(kind)) {
				t.Fatalf("expected allowed %v, got %v", dispatch.AllowedKeys(kind), usage.Allowed)
			}
			for _, key := range usage.Allowed {
				if !strings.Contains(err.Error(), key) {
					t.Fatalf("error %q does not name allowed key %q", err, key)
				}
			}
		})
	}
}

func TestParseParamsValues(t *testing.T) {
	cases := []struct {
		name   string
		kind   dispatch.Kind
		kwargs dispatch.Kwargs
		check  func(t *testing.T, p dispatch.Params)
	}{
		{
			name:   "preview flags",
			kind:   dispatch.KindPreview,
			kwargs: dispatch.Kwargs{"group_albums": false},
			check: func(t *testing.T, p dispatch.Params) {
				pp := p.(dispatch.PreviewParams)
				if pp.GroupAlbums == nil || *pp.GroupAlbums || pp.Autotag != nil {
					t.Fatalf("unexpected %+v", pp)
				}
			},
		},
		{
			name:   "undo defaults to deleting files",
			kind:   dispatch.KindImportUndo,
			kwargs: nil,
			check: func(t *testing.T, p dispatch.Params) {
				if !p.(dispatch.UndoParams).DeleteFiles {
					t.Fatal("expected delete_files default true")
				}
			},
		},
		{
			name:   "single candidate id applies to all tasks",
			kind:   dispatch.KindImportCandidate,
			kwargs: dispatch.Kwargs{"candidate_ids": "asis", "duplicate_actions": map[string]any{"t1": "merge"}},
			check: func(t *testing.T, p dispatch.Params) {
				ip := p.(dispatch.ImportCandidateParams)
				if id, _ := ip.CandidateIDs.For("anything"); id != "asis" {
					t.Fatalf("expected asis for every task, got %q", id)
				}
				if action, _ := ip.DuplicateActions.For("t1"); action != engine.DuplicateMerge {
					t.Fatalf("expected merge for t1, got %q", action)
				}
				if _, ok := ip.DuplicateActions.For("t2"); ok {
					t.Fatal("t2 should have no explicit action")
				}
			},
		},
		{
			name:   "search skip and per-task directive",
			kind:   dispatch.KindAddCandidates,
			kwargs: dispatch.Kwargs{"search": map[string]any{"t1": "skip", "t2": map[string]any{"search_artist": "A", "search_ids": []any{"x"}}}},
			check: func(t *testing.T, p dispatch.Params) {
				ap := p.(dispatch.AddCandidatesParams)
				s1, _ := ap.Search.For("t1")
				s2, _ := ap.Search.For("t2")
				if !s1.Skip || s2.Artist != "A" || len(s2.IDs) != 1 {
					t.Fatalf("unexpected searches %+v %+v", s1, s2)
				}
			},
		},
		{
			name:   "single search directive",
			kind:   dispatch.KindAddCandidates,
			kwargs: dispatch.Kwargs{"search": map[string]any{"search_album": "B"}},
			check: func(t *testing.T, p dispatch.Params) {
				s, ok := p.(dispatch.AddCandidatesParams).Search.For("any")
				if !ok || s.Album != "B" {
					t.Fatalf("unexpected search %+v", s)
				}
			},
		},
		{
			name:   "auto threshold",
			kind:   dispatch.KindImportAuto,
			kwargs: dispatch.Kwargs{"import_threshold": json.Number("0.5")},
			check: func(t *testing.T, p dispatch.Params) {
				ap := p.(dispatch.ImportAutoParams)
				if ap.ImportThreshold == nil || *ap.ImportThreshold != 0.5 {
					t.Fatalf("unexpected threshold %v", ap.ImportThreshold)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := dispatch.ParseParams(tc.kind, tc.kwargs)
			if err != nil {
				t.Fatalf("ParseParams: %v", err)
			}
			if p.Kind() != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, p.Kind())
			}
			tc.check(t, p)
		})
	}
}

func TestParseParamsRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		kind   dispatch.Kind
		kwargs dispatch.Kwargs
	}{
		{"missing search", dispatch.KindAddCandidates, nil},
		{"bool as string", dispatch.KindPreview, dispatch.Kwargs{"autotag": "yes"}},
		{"threshold out of range", dispatch.KindImportAuto, dispatch.Kwargs{"import_threshold": 3.0}},
		{"unknown duplicate action", dispatch.KindImportCandidate, dispatch.Kwargs{"duplicate_actions": "shred"}},
		{"bootleg takes nothing", dispatch.KindImportBootleg, dispatch.Kwargs{"autotag": true}},
		{"bad search directive", dispatch.KindAddCandidates, dispatch.Kwargs{"search": 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := dispatch.ParseParams(tc.kind, tc.kwargs); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	kind, err := dispatch.ParseKind("IMPORT_AUTO")
	if err != nil || kind != dispatch.KindImportAuto {
		t.Fatalf("expected import_auto, got %q %v", kind, err)
	}
	if _, err := dispatch.ParseKind("analyze_attributes"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("internal kinds must not parse, got %v", err)
	}
}

func TestImportAutoSubmitsDependentPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.d.Dispatch(ctx, dispatch.Request{
		Folder:    f.folder,
		Kind:      dispatch.KindImportAuto,
		ExtraMeta: map[string]any{"request": "r1"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(handle.Jobs) != 2 {
		t.Fatalf("expected two jobs, got %d", len(handle.Jobs))
	}
	preview, imp := handle.Jobs[0], handle.Jobs[1]
	if preview.Lane != queue.LanePreview || imp.Lane != queue.LaneImport {
		t.Fatalf("unexpected lanes %s %s", preview.Lane, imp.Lane)
	}
	if imp.DependsOn != preview.ID {
		t.Fatalf("import must depend on preview: %q vs %q", imp.DependsOn, preview.ID)
	}
	if imp.Status != queue.StatusDeferred {
		t.Fatalf("expected deferred import, got %s", imp.Status)
	}
	if preview.Meta.Kind != string(dispatch.KindAutoPreview) || imp.Meta.Kind != string(dispatch.KindAutoImport) {
		t.Fatalf("unexpected meta kinds %q %q", preview.Meta.Kind, imp.Meta.Kind)
	}
	if imp.Meta.FolderHash != "hash-1" || imp.Meta.Extra["request"] != "r1" {
		t.Fatalf("meta not carried: %+v", imp.Meta)
	}
	if handle.ID() != imp.ID {
		t.Fatalf("handle id should be the import job")
	}

	args := decodeArgs[engine.AutoImportParams](t, imp)
	if args.Params.Threshold != 0.3 {
		t.Fatalf("expected default threshold, got %v", args.Params.Threshold)
	}
	previewArgs := decodeArgs[engine.PreviewParams](t, preview)
	if !previewArgs.Params.GroupAlbums || previewArgs.Params.Autotag {
		t.Fatalf("expected defaults on preview, got %+v", previewArgs.Params)
	}
}

func TestImportCandidateFallsBackToAuto(t *testing.T) {
	f := newFixture(t)
	handle, err := f.d.Dispatch(context.Background(), dispatch.Request{
		Folder: f.folder,
		Kind:   dispatch.KindImportCandidate,
		Kwargs: dispatch.Kwargs{"candidate_ids": "asis"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if handle.Kind != dispatch.KindImportAuto || len(handle.Jobs) != 2 {
		t.Fatalf("expected auto fallback with two jobs, got %s with %d", handle.Kind, len(handle.Jobs))
	}
	if handle.Jobs[1].DependsOn != handle.Jobs[0].ID {
		t.Fatal("fallback import must depend on its preview")
	}
}

func TestImportCandidateWithSession(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	handle, err := f.d.Dispatch(context.Background(), dispatch.Request{
		Folder: f.folder,
		Kind:   dispatch.KindImportCandidate,
		Kwargs: dispatch.Kwargs{"candidate_ids": map[string]any{"t1": "c2"}},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(handle.Jobs) != 1 || handle.Jobs[0].Func != dispatch.FuncImportCandidate {
		t.Fatalf("expected single import job, got %+v", handle.Jobs)
	}
	args := decodeArgs[engine.ImportParams](t, handle.Jobs[0])
	if id, _ := args.Params.CandidateIDs.For("t1"); id != "c2" {
		t.Fatalf("candidate ids not stored: %+v", args.Params.CandidateIDs)
	}
}

func TestDispatchPublishesPendingAndIgnoresNotifierErrors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.d.Dispatch(context.Background(), dispatch.Request{Folder: f.folder, Kind: dispatch.KindPreview}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(f.notifier.statuses) != 1 || f.notifier.statuses[0] != notifications.StatusPending {
		t.Fatalf("expected one PENDING, got %v", f.notifier.statuses)
	}
}

func TestDispatchRejectsBadRequestsBeforeEnqueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.d.Dispatch(ctx, dispatch.Request{Folder: f.folder, Kind: dispatch.KindPreview, Kwargs: dispatch.Kwargs{"search": "x"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = f.d.Dispatch(ctx, dispatch.Request{Folder: session.Folder{Hash: "h"}, Kind: dispatch.KindPreview})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected missing path error, got %v", err)
	}
	jobs, err := f.queue.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 || len(f.notifier.statuses) != 0 {
		t.Fatalf("rejected requests must not enqueue or notify: %d jobs, %v", len(jobs), f.notifier.statuses)
	}
}

func TestDispatchHashesFolderWhenHashMissing(t *testing.T) {
	f := newFixture(t)
	dir := testsupport.WriteTree(t, t.TempDir(), "01.mp3", "02.mp3")
	want, err := session.HashFolder(dir)
	if err != nil {
		t.Fatalf("HashFolder: %v", err)
	}
	handle, err := f.d.Dispatch(context.Background(), dispatch.Request{Folder: session.Folder{Path: dir}, Kind: dispatch.KindImportBootleg})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := handle.Jobs[0].Meta.FolderHash; got != want {
		t.Fatalf("expected computed hash %s, got %s", want, got)
	}
}

func TestRoutingPerKind(t *testing.T) {
	cases := []struct {
		kind   dispatch.Kind
		kwargs dispatch.Kwargs
		lane   queue.Lane
		fn     string
	}{
		{dispatch.KindPreview, nil, queue.LanePreview, dispatch.FuncPreview},
		{dispatch.KindAddCandidates, dispatch.Kwargs{"search": "skip"}, queue.LanePreview, dispatch.FuncAddCandidates},
		{dispatch.KindImportBootleg, nil, queue.LaneImport, dispatch.FuncImportBootleg},
		{dispatch.KindImportUndo, dispatch.Kwargs{"delete_files": false}, queue.LaneImport, dispatch.FuncImportUndo},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			f := newFixture(t)
			handle, err := f.d.Dispatch(context.Background(), dispatch.Request{Folder: f.folder, Kind: tc.kind, Kwargs: tc.kwargs})
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			job := handle.Jobs[0]
			if len(handle.Jobs) != 1 || job.Lane != tc.lane || job.Func != tc.fn || job.Meta.Kind != string(tc.kind) {
				t.Fatalf("unexpected job %+v", job)
			}
		})
	}
}

func TestEnqueueDeleteItemsGoesToFront(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.d.Dispatch(ctx, dispatch.Request{Folder: f.folder, Kind: dispatch.KindImportBootleg}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	del, err := f.d.EnqueueDeleteItems(ctx, []string{"task-1"}, true)
	if err != nil {
		t.Fatalf("EnqueueDeleteItems: %v", err)
	}
	next, err := f.queue.Claim(ctx, queue.LaneImport)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if next == nil || next.ID != del.ID {
		t.Fatalf("expected delete job first, got %+v", next)
	}
	if _, err := f.d.EnqueueDeleteItems(ctx, nil, true); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty task ids, got %v", err)
	}
}

func TestEnqueueAnalyze(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.d.EnqueueAnalyze(ctx, []int64{3, 4}, true, false, nil)
	if err != nil {
		t.Fatalf("EnqueueAnalyze: %v", err)
	}
	if job.Lane != queue.LaneImport || job.Func != dispatch.FuncAnalyze {
		t.Fatalf("unexpected job %+v", job)
	}
	var args dispatch.AnalyzeArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(args.ItemIDs) != 2 || !args.BPM || args.Key {
		t.Fatalf("unexpected args %+v", args)
	}
	if _, err := f.d.EnqueueAnalyze(ctx, nil, true, true, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPhaseFor(t *testing.T) {
	cases := []struct {
		kind  dispatch.Kind
		phase notifications.Phase
		ok    bool
	}{
		{dispatch.KindPreview, notifications.PreviewPhase, true},
		{dispatch.KindAutoPreview, notifications.PreviewPhase, true},
		{dispatch.KindAutoImport, notifications.ImportPhase, true},
		{dispatch.KindImportBootleg, notifications.ImportPhase, true},
		{dispatch.KindImportUndo, notifications.DeletePhase, true},
		{dispatch.KindAnalyze, notifications.Phase{}, false},
		{dispatch.KindDeleteItems, notifications.Phase{}, false},
	}
	for _, tc := range cases {
		phase, ok := dispatch.PhaseFor(tc.kind)
		if ok != tc.ok || phase != tc.phase {
			t.Fatalf("%s: expected %+v/%v, got %+v/%v", tc.kind, tc.phase, tc.ok, phase, ok)
		}
	}
}

// flakyQueue fails the nth Enqueue and passes everything else to the store.
type flakyQueue struct {
	*queue.Store
	failOn int
	calls  int
}

func (q *flakyQueue) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*queue.Job, error) {
	q.calls++
	if q.calls == q.failOn {
		return nil, errors.New("database is locked")
	}
	return q.Store.Enqueue(ctx, req)
}

func TestImportAutoWithdrawsPreviewWhenImportFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := dispatch.New(&flakyQueue{Store: f.queue, failOn: 2}, f.sessions)

	if _, err := d.Dispatch(ctx, dispatch.Request{Folder: f.folder, Kind: dispatch.KindImportAuto}); err == nil {
		t.Fatal("expected dispatch to fail")
	}
	jobs, err := f.queue.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no orphaned jobs, got %d (first kind %q)", len(jobs), jobs[0].Meta.Kind)
	}
}
