package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tagflow/internal/api"
	"tagflow/internal/config"
	"tagflow/internal/dispatch"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		hash       string
		kwargsJSON string
		sets       []string
		metas      []string
		asJSON     bool
	)

	kinds := make([]string, len(dispatch.FolderKinds))
	for i, k := range dispatch.FolderKinds {
		kinds[i] = string(k)
	}

	cmd := &cobra.Command{
		Use:   "enqueue <kind> <folder>",
		Short: "Queue folder work of one kind",
		Long: "Queue folder work on the daemon.\n\nKinds: " + strings.Join(kinds, ", ") +
			"\n\nKeyword arguments come from --kwargs (a JSON object) and --set key=value; " +
			"--set values are parsed as JSON when possible and fall back to strings.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := dispatch.ParseKind(args[0])
			if err != nil {
				return err
			}
			folder, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}
			kwargs, err := buildKwargs(kwargsJSON, sets)
			if err != nil {
				return err
			}
			extra, err := parseAssignments(metas)
			if err != nil {
				return err
			}

			var resp api.QueuedResponse
			err = ctx.client().do(cmd.Context(), http.MethodPost, "/api/enqueue", api.EnqueueRequest{
				Hash:      hash,
				Path:      folder,
				Kind:      string(kind),
				ExtraMeta: extra,
				Kwargs:    kwargs,
			}, &resp)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queued %s for %s\n", kindLabel(resp.Kind), folder)
			if resp.Kind != string(kind) {
				fmt.Fprintf(out, "No stored session; dispatched as %s instead of %s\n", kindLabel(resp.Kind), kindLabel(string(kind)))
			}
			for _, id := range resp.JobIDs {
				fmt.Fprintf(out, "  job %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "Folder hash (computed from the folder contents when omitted)")
	cmd.Flags().StringVar(&kwargsJSON, "kwargs", "", "Keyword arguments as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Keyword argument as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&metas, "meta", nil, "Extra job meta as key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the daemon response as JSON")
	return cmd
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var (
		bpm    bool
		key    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <item-id>...",
		Short: "Queue tempo and key analysis of library items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			var resp api.QueuedResponse
			err = ctx.client().do(cmd.Context(), http.MethodPost, "/api/analyze", api.AnalyzeRequest{
				ItemIDs:    ids,
				AnalyzeBPM: &bpm,
				AnalyzeKey: &key,
			}, &resp)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued analysis of %d item(s): job %s\n", len(ids), resp.JobID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&bpm, "bpm", true, "Detect tempo")
	cmd.Flags().BoolVar(&key, "key", true, "Detect musical key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the daemon response as JSON")
	return cmd
}

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Library item utilities",
	}

	var keepFiles bool
	deleteCmd := &cobra.Command{
		Use:   "delete <task-id>...",
		Short: "Queue removal of every item imported by the given tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleteFiles := !keepFiles
			var resp api.QueuedResponse
			err := ctx.client().do(cmd.Context(), http.MethodPost, "/api/items/delete", api.DeleteItemsRequest{
				TaskIDs:     args,
				DeleteFiles: &deleteFiles,
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued deletion for %d task(s): job %s\n", len(args), resp.JobID)
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Remove library entries but keep the files on disk")

	metadataCmd := &cobra.Command{
		Use:   "metadata <item-id>",
		Short: "Show the embedded tags of an item's file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			var resp api.ItemMetadataResponse
			if err := ctx.client().do(cmd.Context(), http.MethodGet, fmt.Sprintf("/api/items/%d/metadata", ids[0]), nil, &resp); err != nil {
				return err
			}
			return writeJSON(cmd, resp)
		},
	}

	itemsCmd.AddCommand(deleteCmd, metadataCmd)
	return itemsCmd
}

func buildKwargs(raw string, sets []string) (map[string]any, error) {
	kwargs := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &kwargs); err != nil {
			return nil, fmt.Errorf("--kwargs must be a JSON object: %w", err)
		}
	}
	assigned, err := parseAssignments(sets)
	if err != nil {
		return nil, err
	}
	for k, v := range assigned {
		kwargs[k] = v
	}
	if len(kwargs) == 0 {
		return nil, nil
	}
	return kwargs, nil
}

// parseAssignments reads key=value pairs. Values that parse as JSON keep
// their JSON type.
func parseAssignments(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
			continue
		}
		out[key] = value
	}
	return out, nil
}

func parseItemIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
