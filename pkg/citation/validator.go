// Package citation checks that every claim in a drafted answer is backed by
// the evidence it cites, and rewrites or rejects the answer when it is not.
package citation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/soundprediction/groundgraph/pkg/metrics"
	"github.com/soundprediction/groundgraph/pkg/types"
	"github.com/soundprediction/groundgraph/pkg/utils"
)

// NotFoundMarker is the verbatim answer given whenever the evidence cannot
// ground a response.
const NotFoundMarker = "Not found in the available evidence: there is insufficient grounded information to answer this question."

// Defaults used when Options leaves a field zero.
const (
	DefaultOverlapThreshold       = 0.3
	DefaultAccuracyWeight         = 0.7
	DefaultSupportWeight          = 0.3
	DefaultMinConfidence          = 0.7
	DefaultMissingCitationPenalty = 0.5
	DefaultTimeout                = 5 * time.Second

	// minClaimLength is the shortest marker-free sentence treated as a claim.
	minClaimLength = 10
	// minFactualLength is the shortest uncited sentence checked for figures.
	minFactualLength = 25
)

// Options configures a Validator.
type Options struct {
	OverlapThreshold float64
	AccuracyWeight   float64
	SupportWeight    float64
	// MinConfidence is the acceptance bar. Set NoMinimum to accept anything.
	MinConfidence          float64
	NoMinimum              bool
	MissingCitationPenalty float64
	Timeout                time.Duration
	Metrics                *metrics.Metrics
	Logger                 *slog.Logger
}

// Outcome is the result of Validate.
type Outcome struct {
	// Answer is the corrected answer, or NotFoundMarker when rejected.
	Answer string
	// Evidence is renumbered to match the citations in Answer.
	Evidence []types.Evidence
	// Result scores Answer; Initial scores the draft as submitted.
	Result   *types.ValidationResult
	Initial  *types.ValidationResult
	Accepted bool
	// Corrected is true when the accepted answer differs from the draft.
	Corrected bool
	Invalid   []*types.CitationInvalidError
	Reason    string
}

// Validator scores and repairs citations. It holds no per-answer state.
type Validator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a validator.
func New(opts Options) *Validator {
	if opts.OverlapThreshold <= 0 {
		opts.OverlapThreshold = DefaultOverlapThreshold
	}
	if opts.AccuracyWeight < 0 || opts.SupportWeight < 0 || opts.AccuracyWeight+opts.SupportWeight == 0 {
		opts.AccuracyWeight, opts.SupportWeight = DefaultAccuracyWeight, DefaultSupportWeight
	}
	if opts.MinConfidence <= 0 && !opts.NoMinimum {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.MissingCitationPenalty < 0 || opts.MissingCitationPenalty > 1 {
		opts.MissingCitationPenalty = DefaultMissingCitationPenalty
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Validator{opts: opts, logger: opts.Logger}
}

// Check scores answer against evidence without changing it.
func (v *Validator) Check(answer string, evidence []types.Evidence) *types.ValidationResult {
	result, _ := v.check(splitSentences(answer), evidence)
	return result
}

// sentenceVerdict is the per-sentence detail behind a ValidationResult.
type sentenceVerdict struct {
	claim     bool
	supported bool
	valid     map[int]bool
}

func (v *Validator) check(sentences []sentence, evidence []types.Evidence) (*types.ValidationResult, []sentenceVerdict) {
	result := &types.ValidationResult{}
	verdicts := make([]sentenceVerdict, len(sentences))

	var validCitations, claims, supportedClaims, measured, uncited int
	for i, s := range sentences {
		cited := markers(s.Text)
		text := stripMarkers(s.Text)
		isClaim := utf8.RuneCountInString(text) >= minClaimLength
		verdict := sentenceVerdict{claim: isClaim && len(cited) > 0, valid: make(map[int]bool)}

		if isClaim {
			measured++
		}
		if len(cited) == 0 {
			if isFactual(text) {
				uncited++
				result.UncitedClaims = append(result.UncitedClaims, text)
			}
			verdicts[i] = verdict
			continue
		}

		for _, idx := range cited {
			check := types.CitationCheck{Index: idx, Sentence: i, InRange: idx >= 1 && idx <= len(evidence)}
			switch {
			case !check.InRange:
			case !isClaim:
				check.Supported = true
			default:
				check.Overlap = Overlap(text, evidence[idx-1].Snippet)
				check.Supported = check.Overlap >= v.opts.OverlapThreshold
			}
			if check.Valid() {
				validCitations++
				verdict.valid[idx] = true
				verdict.supported = true
			}
			result.Citations = append(result.Citations, check)
		}

		if verdict.claim {
			claims++
			if verdict.supported {
				supportedClaims++
			} else {
				result.UnsupportedClaims = append(result.UnsupportedClaims, text)
			}
		}
		verdicts[i] = verdict
	}

	result.CitationAccuracy = 1
	if len(result.Citations) > 0 {
		result.CitationAccuracy = float64(validCitations) / float64(len(result.Citations))
	}
	result.ClaimSupportRatio = 1
	if claims > 0 {
		result.ClaimSupportRatio = float64(supportedClaims) / float64(claims)
	}

	aw, sw := v.opts.AccuracyWeight, v.opts.SupportWeight
	score := (aw*result.CitationAccuracy + sw*result.ClaimSupportRatio) / (aw + sw)
	if uncited > 0 && measured > 0 {
		score *= 1 - v.opts.MissingCitationPenalty*float64(uncited)/float64(measured)
	}
	if len(sentences) == 0 {
		score = 0
	}
	result.ConfidenceScore = clamp01(score)
	return result, verdicts
}

// Validate checks draft against evidence and self-corrects. Below the
// acceptance bar the answer becomes NotFoundMarker. Otherwise invalid
// citations are stripped, unsupported claims dropped and the surviving
// citations renumbered from [1] in order of first appearance.
func (v *Validator) Validate(ctx context.Context, draft string, evidence []types.Evidence) *Outcome {
	start := time.Now()
	defer v.opts.Metrics.ObserveStage("validate", start)

	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return v.reject(&Outcome{}, fmt.Sprintf("validation interrupted: %v", err))
	}

	sentences := splitSentences(draft)
	initial, verdicts := v.check(sentences, evidence)
	out := &Outcome{Initial: initial, Invalid: invalidCitations(initial, evidence)}

	if initial.ConfidenceScore < v.opts.MinConfidence {
		return v.reject(out, fmt.Sprintf("confidence %.3f below %.2f", initial.ConfidenceScore, v.opts.MinConfidence))
	}

	var kept []sentence
	order := make(map[int]int)
	var reordered []types.Evidence
	for i, s := range sentences {
		if verdicts[i].claim && !verdicts[i].supported {
			continue
		}
		valid := verdicts[i].valid
		s.Text = rewriteMarkers(s.Text, func(idx int) (int, bool) {
			if !valid[idx] {
				return 0, false
			}
			if n, ok := order[idx]; ok {
				return n, true
			}
			reordered = append(reordered, evidence[idx-1])
			order[idx] = len(reordered)
			return order[idx], true
		})
		if s.Text != "" {
			kept = append(kept, s)
		}
	}

	if err := ctx.Err(); err != nil {
		return v.reject(out, fmt.Sprintf("validation interrupted: %v", err))
	}

	out.Answer = joinSentences(kept)
	out.Evidence = reordered
	if out.Answer == "" {
		return v.reject(out, "no supported claims left")
	}
	out.Result, _ = v.check(kept, reordered)
	if out.Result.ConfidenceScore < v.opts.MinConfidence {
		return v.reject(out, fmt.Sprintf("corrected confidence %.3f below %.2f", out.Result.ConfidenceScore, v.opts.MinConfidence))
	}

	out.Accepted = true
	out.Corrected = out.Answer != strings.TrimSpace(draft)
	v.logger.Debug("Answer validated",
		"initial", initial.ConfidenceScore,
		"final", out.Result.ConfidenceScore,
		"corrected", out.Corrected,
		"dropped_claims", len(initial.UnsupportedClaims))
	return out
}

func (v *Validator) reject(out *Outcome, reason string) *Outcome {
	out.Answer = NotFoundMarker
	out.Evidence = nil
	out.Accepted = false
	out.Reason = reason
	out.Result = &types.ValidationResult{}
	if out.Initial != nil {
		*out.Result = *out.Initial
	}
	v.logger.Info("Answer rejected", "reason", reason)
	return out
}

func invalidCitations(result *types.ValidationResult, evidence []types.Evidence) []*types.CitationInvalidError {
	var out []*types.CitationInvalidError
	for _, c := range result.InvalidCitations() {
		reason := fmt.Sprintf("index outside [1,%d]", len(evidence))
		if c.InRange {
			reason = fmt.Sprintf("evidence does not support the claim (overlap %.2f)", c.Overlap)
		}
		out = append(out, &types.CitationInvalidError{Index: c.Index, Reason: reason})
	}
	return out
}

// Overlap scores how well snippet backs claim: 1 when either contains the
// other after normalization, otherwise the share of claim keywords found
// in the snippet.
func Overlap(claim, snippet string) float64 {
	c, s := utils.NormalizeForMatch(claim), utils.NormalizeForMatch(snippet)
	if c == "" || s == "" {
		return 0
	}
	if strings.Contains(s, c) || strings.Contains(c, s) {
		return 1
	}
	return utils.KeywordOverlap(claim, snippet)
}

// isFactual reports sentences that state figures and so should carry a citation.
func isFactual(text string) bool {
	if utf8.RuneCountInString(text) < minFactualLength {
		return false
	}
	return strings.ContainsAny(text, "0123456789%$")
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
