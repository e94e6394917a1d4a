package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bman/internal/schema"
)

var (
	mergeEditStatusJSON string
	mergeEditFromStdin  bool
)

var mergeBehaviorEditCmd = &cobra.Command{
	Use:   "merge-behavior-edit",
	Short: "Apply a scoped merge patch to scenarios/plan.json",
	RunE:  runMergeBehaviorEdit,
}

func init() {
	mergeBehaviorEditCmd.Flags().StringVar(&mergeEditStatusJSON, "status-json", "", "path to a status --full JSON payload whose next_action.content is the merge patch")
	mergeBehaviorEditCmd.Flags().BoolVar(&mergeEditFromStdin, "from-stdin", false, "read the merge patch itself as JSON from stdin")
}

// runMergeBehaviorEdit accepts the exact patch shape apply --lm proposes:
// a schema.MergePatch that only upserts scenarios and, optionally, merges
// plan defaults. It is the non-LM, human-authored path to the same edit.
func runMergeBehaviorEdit(cmd *cobra.Command, args []string) error {
	haveFile := mergeEditStatusJSON != ""
	if haveFile == mergeEditFromStdin {
		return &schema.Error{Path: "--status-json / --from-stdin", Err: fmt.Errorf("exactly one of --status-json FILE or --from-stdin is required")}
	}

	p, err := openPack()
	if err != nil {
		return err
	}

	patch, err := readMergePatch(cmd.InOrStdin())
	if err != nil {
		return err
	}

	if err := applyMergePatch(p, patch); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "merged %d scenario(s) into scenarios/plan.json\n", len(patch.UpsertScenarios))
	return nil
}

func readMergePatch(stdin io.Reader) (*schema.MergePatch, error) {
	if mergeEditFromStdin {
		var patch schema.MergePatch
		if err := schema.Decode(stdin, &patch); err != nil {
			return nil, &schema.Error{Path: "<stdin>", Err: err}
		}
		return &patch, nil
	}

	f, err := os.Open(mergeEditStatusJSON)
	if err != nil {
		return nil, &schema.Error{Path: mergeEditStatusJSON, Err: err}
	}
	defer f.Close()

	var full struct {
		NextAction *schema.NextAction `json:"next_action"`
	}
	if err := json.NewDecoder(f).Decode(&full); err != nil {
		return nil, &schema.Error{Path: mergeEditStatusJSON, Err: err}
	}
	if full.NextAction == nil || full.NextAction.EditStrategy != schema.EditMergeBehaviorScenarios {
		return nil, &schema.Error{Path: mergeEditStatusJSON, Err: fmt.Errorf("next_action is not a merge_behavior_scenarios edit")}
	}
	var patch schema.MergePatch
	if err := schema.Decode(bytes.NewReader(full.NextAction.Content), &patch); err != nil {
		return nil, &schema.Error{Path: mergeEditStatusJSON, Field: "next_action.content", Err: err}
	}
	return &patch, nil
}
