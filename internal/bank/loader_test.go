package bank_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"classquiz/internal/bank"
	"classquiz/internal/domain"
)

const header = "id,question,option_a,option_b,option_c,answer,category,difficulty\n"

func TestParsePreservesOrderAndNormalizes(t *testing.T) {
	src := header +
		"3,\"What does this print?\n\nfmt.Println(1+1)\",1,2,11, B ,basics,Easy\n" +
		"1,Pick slices,array,slice,,a,collections, HARD \n"

	b, err := bank.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(b.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(b.Questions))
	}
	first := b.Questions[0]
	if first.ID != 3 || first.Answer != "b" || first.Difficulty != domain.Easy {
		t.Fatalf("unexpected first question %+v", first)
	}
	if first.Stem() != "What does this print?" || first.Code() != "fmt.Println(1+1)" {
		t.Fatalf("unexpected stem/code split: %q / %q", first.Stem(), first.Code())
	}
	second := b.Questions[1]
	if second.ID != 1 || second.Difficulty != domain.Hard {
		t.Fatalf("unexpected second question %+v", second)
	}
	if len(second.Options()) != 2 {
		t.Fatalf("expected blank option_c to be dropped, got %+v", second.Options())
	}
	if b.Fingerprint == "" {
		t.Fatalf("expected fingerprint")
	}
}

func TestParseCoercesBlankText(t *testing.T) {
	src := header + "1,,yes,no,,a,,medium\n"

	b, err := bank.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("blank prose should be tolerated: %v", err)
	}
	q := b.Questions[0]
	if q.Prompt != "" || q.Category != "" || q.OptionC != "" {
		t.Fatalf("expected empty strings, got %+v", q)
	}
}

func TestParseToleratesShortRowsAndBOM(t *testing.T) {
	src := "\ufeff" + header + "1,Q,yes,no,,b,cat,easy\n2,Q2,x,y\n"

	_, err := bank.Parse(strings.NewReader(src))
	var verr *bank.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for row missing answer and difficulty, got %v", err)
	}
	if verr.Row != 2 || verr.Field != "difficulty" {
		t.Fatalf("unexpected validation error %+v", verr)
	}
}

func TestParseRejectsInvalidBanks(t *testing.T) {
	cases := []struct {
		name  string
		src   string
		field string
	}{
		{"unknown difficulty", header + "1,Q,a1,b1,c1,a,cat,extreme\n", "difficulty"},
		{"answer not offered", header + "1,Q,a1,b1,,c,cat,easy\n", "answer"},
		{"answer not a label", header + "1,Q,a1,b1,c1,d,cat,easy\n", "answer"},
		{"bad id", header + "x,Q,a1,b1,c1,a,cat,easy\n", "id"},
		{"duplicate id", header + "1,Q,a1,b1,c1,a,cat,easy\n1,Q,a1,b1,c1,a,cat,easy\n", "id"},
		{"missing column", "id,question,option_a,option_b,option_c,answer,category\n1,Q,a,b,c,a,cat\n", "difficulty"},
		{"no rows", header, "questions"},
		{"empty file", "", "header"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bank.Parse(strings.NewReader(tc.src))
			if !errors.Is(err, domain.ErrInvalidBank) {
				t.Fatalf("expected ErrInvalidBank, got %v", err)
			}
			var verr *bank.ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, err)
			}
		})
	}
}

func TestFingerprintTracksGradedShape(t *testing.T) {
	a, err := bank.Parse(strings.NewReader(header + "1,Q,x,y,,a,cat,easy\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	reworded, err := bank.Parse(strings.NewReader(header + "1,Other wording,x,y,,a,cat,easy\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rekeyed, err := bank.Parse(strings.NewReader(header + "1,Q,x,y,,b,cat,easy\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Fingerprint != reworded.Fingerprint {
		t.Fatalf("prompt wording should not change fingerprint")
	}
	if a.Fingerprint == rekeyed.Fingerprint {
		t.Fatalf("answer key change should change fingerprint")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.csv")
	if err := os.WriteFile(path, []byte(header+"1,Q,x,y,z,c,cat,medium\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := bank.NewFileLoader(path).LoadBank(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(b.Questions) != 1 || b.Questions[0].Answer != "c" {
		t.Fatalf("unexpected bank %+v", b)
	}

	if _, err := bank.LoadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
