package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, lane, func, args_json, meta_json, status, depends_on, position, result_json, error_message, attempts, hook_fired, created_at, started_at, ended_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		lane         string
		fn           string
		argsRaw      sql.NullString
		metaRaw      sql.NullString
		statusStr    string
		dependsOn    sql.NullString
		position     int64
		resultRaw    sql.NullString
		errorMessage sql.NullString
		attempts     int
		hookFired    int
		createdRaw   string
		startedRaw   sql.NullString
		endedRaw     sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&lane,
		&fn,
		&argsRaw,
		&metaRaw,
		&statusStr,
		&dependsOn,
		&position,
		&resultRaw,
		&errorMessage,
		&attempts,
		&hookFired,
		&createdRaw,
		&startedRaw,
		&endedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Lane:         Lane(lane),
		Func:         fn,
		Status:       Status(statusStr),
		DependsOn:    dependsOn.String,
		Position:     position,
		ErrorMessage: errorMessage.String,
		Attempts:     attempts,
		HookFired:    hookFired != 0,
	}
	if argsRaw.Valid && argsRaw.String != "" {
		job.Args = json.RawMessage(argsRaw.String)
	}
	if resultRaw.Valid && resultRaw.String != "" {
		job.Result = json.RawMessage(resultRaw.String)
	}
	if metaRaw.Valid && metaRaw.String != "" {
		if err := json.Unmarshal([]byte(metaRaw.String), &job.Meta); err != nil {
			return nil, fmt.Errorf("decode meta for job %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.EndedAt = parseNullableTime(endedRaw)
	job.LastHeartbeat = parseNullableTime(heartbeatRaw)
	return job, nil
}

func encodeJSON(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		return string(v), nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return string(v), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs[T ~string](values []T) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, string(v))
	}
	return args
}
