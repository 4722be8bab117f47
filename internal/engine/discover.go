package engine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"tagflow/internal/logging"
	"tagflow/internal/services"
	"tagflow/internal/session"
	"tagflow/internal/textutil"
)

// AsisCandidateID names the candidate built from a task's own tags.
const AsisCandidateID = "asis"

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".flac": {}, ".m4a": {}, ".ogg": {}, ".opus": {}, ".wav": {}, ".aiff": {}, ".aif": {},
}

// IsAudioFile reports whether path has a recognised audio extension.
func IsAudioFile(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// discover reads every audio file under root and groups the tracks into
// tasks: one per directory, or one per album tag when groupAlbums is set.
func (e *Engine) discover(ctx context.Context, root string, groupAlbums bool) ([]*session.Task, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && IsAudioFile(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "engine", "discover", fmt.Sprintf("read %s", root), err)
	}
	sort.Strings(paths)

	var (
		order  []string
		groups = make(map[string][]session.Track)
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		track := e.readTrack(ctx, p)
		key := filepath.Dir(p)
		if groupAlbums {
			key = textutil.Fold(track.Artist) + "\x00" + textutil.Fold(track.Album)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], track)
	}

	tasks := make([]*session.Task, 0, len(order))
	for _, key := range order {
		tracks := groups[key]
		sort.SliceStable(tracks, func(i, j int) bool {
			if tracks[i].Number != tracks[j].Number {
				return tracks[i].Number < tracks[j].Number
			}
			return tracks[i].Path < tracks[j].Path
		})
		tasks = append(tasks, &session.Task{
			ID:       uuid.NewString(),
			Tracks:   tracks,
			Progress: session.ProgressPending,
		})
	}
	return tasks, nil
}

func (e *Engine) readTrack(ctx context.Context, path string) session.Track {
	track := session.Track{Path: path}
	result, err := e.probe(ctx, path)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "tag read failed", "tag_read_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "track treated as untagged"),
		)
		return track
	}
	track.Title = result.Title()
	track.Artist = result.Artist()
	track.Album = result.Album()
	track.Number = result.TrackNumber()
	return track
}

// asisCandidate proposes the files' current tags. Its distance is the share
// of title, artist, and album fields missing across the tracks.
func asisCandidate(tracks []session.Track) session.Candidate {
	cand := session.Candidate{
		ID:     AsisCandidateID,
		Source: AsisCandidateID,
		Artist: mostCommon(tracks, func(t session.Track) string { return t.Artist }),
		Album:  mostCommon(tracks, func(t session.Track) string { return t.Album }),
		Tracks: append([]session.Track(nil), tracks...),
	}
	if len(tracks) == 0 {
		cand.Distance = 1
		return cand
	}
	missing := 0
	for _, t := range tracks {
		for _, v := range []string{t.Title, t.Artist, t.Album} {
			if strings.TrimSpace(v) == "" {
				missing++
			}
		}
	}
	cand.Distance = float64(missing) / float64(3*len(tracks))
	return cand
}

// candidateDistance scores a proposed artist/album against the tracks' tags.
func candidateDistance(tracks []session.Track, artist, album string) float64 {
	if len(tracks) == 0 {
		return 1
	}
	var total float64
	for _, t := range tracks {
		total += (textutil.Similarity(t.Artist, artist) + textutil.Similarity(t.Album, album)) / 2
	}
	return 1 - total/float64(len(tracks))
}

func mostCommon(tracks []session.Track, field func(session.Track) string) string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, t := range tracks {
		v := strings.TrimSpace(field(t))
		if v == "" {
			continue
		}
		counts[v]++
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}
