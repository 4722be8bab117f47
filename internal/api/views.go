package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tagflow/internal/media/ffprobe"
	"tagflow/internal/queue"
)

func (h *handler) listJobs(c *gin.Context) {
	var filter queue.ListFilter
	for _, raw := range splitQuery(c.QueryArray("status")) {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			badRequest(c, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range splitQuery(c.QueryArray("lane")) {
		lane := queue.Lane(strings.ToLower(raw))
		if !lane.Valid() {
			badRequest(c, fmt.Sprintf("unknown lane %q", raw))
			return
		}
		filter.Lanes = append(filter.Lanes, lane)
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.deps.Jobs.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*queue.Job{}
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: jobs})
}

func (h *handler) getJob(c *gin.Context) {
	id := c.Param("id")
	job, err := h.deps.Jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if job == nil {
		notFound(c, fmt.Sprintf("job %q not found", id))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *handler) listRevisions(c *gin.Context) {
	hash := c.Param("hash")
	records, err := h.deps.Sessions.ListRevisions(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(records) == 0 {
		notFound(c, fmt.Sprintf("no session stored for hash %q", hash))
		return
	}
	resp := RevisionListResponse{Hash: hash, Revisions: make([]Revision, 0, len(records))}
	for _, rec := range records {
		resp.Revisions = append(resp.Revisions, FromRecord(rec))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) itemMetadata(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "item id must be an integer")
		return
	}
	item, err := h.deps.Items.GetItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if item == nil {
		notFound(c, fmt.Sprintf("item %d not found in library", id))
		return
	}
	if _, err := os.Stat(item.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			conflict(c, fmt.Sprintf("item file %q does not exist for item %d", item.Path, id))
			return
		}
		writeError(c, err)
		return
	}

	read := h.deps.Metadata
	if read == nil {
		read = FFprobeMetadata("ffprobe")
	}
	meta, err := read(c.Request.Context(), item.Path)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ItemMetadataResponse{ItemID: id, Path: item.Path, Metadata: meta})
}

// FFprobeMetadata reads tags with the ffprobe binary.
func FFprobeMetadata(binary string) MetadataReader {
	return func(ctx context.Context, path string) (Metadata, error) {
		result, err := ffprobe.Inspect(ctx, binary, path)
		if err != nil {
			return Metadata{}, err
		}
		tags := result.Tags()
		if tags == nil {
			tags = map[string]string{}
		}
		return Metadata{
			Tags:       tags,
			Duration:   result.DurationSeconds(),
			SampleRate: result.SampleRate(),
		}, nil
	}
}

// splitQuery accepts both repeated parameters and comma-separated lists.
func splitQuery(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
