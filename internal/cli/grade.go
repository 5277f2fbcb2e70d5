package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"classquiz/internal/domain"
)

// NewGradeCmd grades one complete set of answers and appends it to the result log.
func NewGradeCmd(configPath *string) *cobra.Command {
	var learner domain.Learner
	var rawAnswers string
	cmd := &cobra.Command{
		Use:     "grade",
		Short:   "Grade a set of answers and record the result",
		Example: `  classquiz grade --name "Ana" --class "Class 2" --answers 1=a,2=c,3=b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := parseAnswers(rawAnswers)
			if err != nil {
				return err
			}
			return runGrade(cmd.Context(), cmd.OutOrStdout(), *configPath, learner, answers)
		},
	}
	cmd.Flags().StringVar(&learner.Name, "name", "", "learner name")
	cmd.Flags().StringVar(&learner.Class, "class", "", "learner class")
	cmd.Flags().StringVar(&rawAnswers, "answers", "", "comma separated id=label pairs")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func runGrade(ctx context.Context, out io.Writer, configPath string, learner domain.Learner, answers map[int]string) error {
	e, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.service.Grade(ctx, learner, answers)
	if err != nil {
		return err
	}
	snapshot, err := e.service.Report(ctx, &result)
	if err != nil {
		return err
	}
	return writeJSON(out, struct {
		Result   domain.Result   `json:"result"`
		Snapshot domain.Snapshot `json:"snapshot"`
	}{result, snapshot})
}

// parseAnswers reads "1=a,2=b"; unanswered questions are simply left out.
func parseAnswers(raw string) (map[int]string, error) {
	answers := make(map[int]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idPart, label, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("answer %q: want id=label", pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("answer %q: bad question id", pair)
		}
		if label = domain.NormalizeLabel(label); label != "" {
			answers[id] = label
		}
	}
	return answers, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
