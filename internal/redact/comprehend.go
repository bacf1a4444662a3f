// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redact masks personally identifiable information before anything
// is persisted or transmitted.
package redact

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	comptypes "github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// maxKeyPhrases bounds how many key phrases an Analysis carries.
const maxKeyPhrases = 10

// comprehendAPI is the slice of the Comprehend client this package calls.
// Tests substitute a fake.
type comprehendAPI interface {
	DetectPiiEntities(ctx context.Context, params *comprehend.DetectPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error)
	DetectSentiment(ctx context.Context, params *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
	DetectKeyPhrases(ctx context.Context, params *comprehend.DetectKeyPhrasesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectKeyPhrasesOutput, error)
	DetectEntities(ctx context.Context, params *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
}

// piiLanguages lists the base languages the Comprehend PII model accepts.
// Everything else routes to local-only detection.
var piiLanguages = map[string]bool{
	"en": true,
	"es": true,
}

// Comprehend implements Classifier and Analyzer on Amazon Comprehend.
type Comprehend struct {
	api     comprehendAPI
	timeout time.Duration
}

// NewComprehend builds a classifier from the ambient AWS configuration
// (shared config files, environment, instance role). Profile and region
// override the environment when set.
func NewComprehend(ctx context.Context, region, profile string, timeout time.Duration) (*Comprehend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Comprehend{api: comprehend.NewFromConfig(cfg), timeout: timeout}, nil
}

// SupportsPII reports whether the PII model covers the base language.
func (c *Comprehend) SupportsPII(language string) bool {
	return piiLanguages[language]
}

// DetectPII calls the remote PII model and maps its entities to spans.
// Threshold filtering happens in the Masker so fakes stay trivial.
func (c *Comprehend) DetectPII(ctx context.Context, text, language string) ([]Span, error) {
	out, err := c.api.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: comptypes.LanguageCode(language),
	})
	if err != nil {
		return nil, fmt.Errorf("detect pii entities: %w", err)
	}

	spans := make([]Span, 0, len(out.Entities))
	for _, e := range out.Entities {
		spans = append(spans, Span{
			Category: string(e.Type),
			Begin:    int(aws.ToInt32(e.BeginOffset)),
			End:      int(aws.ToInt32(e.EndOffset)),
			Score:    float64(aws.ToFloat32(e.Score)),
		})
	}
	return spans, nil
}

// Analyze gathers sentiment, key phrases, and named entities for a record's
// nlp_analysis section. Every sub-call is independent and best-effort: a
// failure leaves its field empty rather than erroring, because auxiliary
// analysis must never block the masking or recording path. Returns nil when
// nothing was analyzable.
func (c *Comprehend) Analyze(ctx context.Context, text, language string) *Analysis {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	a := &Analysis{Language: language}
	lc := comptypes.LanguageCode(language)

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	sentiment, err := c.api.DetectSentiment(sctx, &comprehend.DetectSentimentInput{
		Text:         aws.String(text),
		LanguageCode: lc,
	})
	cancel()
	if err == nil {
		a.Sentiment = string(sentiment.Sentiment)
		if s := sentiment.SentimentScore; s != nil {
			a.SentimentScores = map[string]float64{
				"positive": float64(aws.ToFloat32(s.Positive)),
				"negative": float64(aws.ToFloat32(s.Negative)),
				"neutral":  float64(aws.ToFloat32(s.Neutral)),
				"mixed":    float64(aws.ToFloat32(s.Mixed)),
			}
		}
	}

	kctx, cancel := context.WithTimeout(ctx, c.timeout)
	phrases, err := c.api.DetectKeyPhrases(kctx, &comprehend.DetectKeyPhrasesInput{
		Text:         aws.String(text),
		LanguageCode: lc,
	})
	cancel()
	if err == nil && len(phrases.KeyPhrases) > 0 {
		ranked := make([]comptypes.KeyPhrase, len(phrases.KeyPhrases))
		copy(ranked, phrases.KeyPhrases)
		sort.SliceStable(ranked, func(i, j int) bool {
			return aws.ToFloat32(ranked[i].Score) > aws.ToFloat32(ranked[j].Score)
		})
		if len(ranked) > maxKeyPhrases {
			ranked = ranked[:maxKeyPhrases]
		}
		for _, p := range ranked {
			if t := aws.ToString(p.Text); t != "" {
				a.KeyPhrases = append(a.KeyPhrases, t)
			}
		}
	}

	ectx, cancel := context.WithTimeout(ctx, c.timeout)
	entities, err := c.api.DetectEntities(ectx, &comprehend.DetectEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: lc,
	})
	cancel()
	if err == nil {
		for _, e := range entities.Entities {
			a.Entities = append(a.Entities, Entity{
				Text:  aws.ToString(e.Text),
				Type:  string(e.Type),
				Score: float64(aws.ToFloat32(e.Score)),
			})
		}
	}

	if a.Sentiment == "" && len(a.KeyPhrases) == 0 && len(a.Entities) == 0 {
		return nil
	}
	return a
}
