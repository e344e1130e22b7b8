// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query runs retrieval and retrieval-augmented generation
// against a provisioned knowledge base through the Bedrock Agent
// Runtime data plane.
// See docs/ARCHITECTURE § Query.
package query

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	runtimetypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

const defaultMaxResults = 5

// RuntimeAPI is the subset of the Bedrock Agent Runtime client used
// for queries.
type RuntimeAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// Chunk is one retrieved passage with its provenance.
type Chunk struct {
	Content  string         `json:"content"`
	Location string         `json:"location,omitempty"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Answer is a generated response with the passages it cited.
type Answer struct {
	Text      string  `json:"text"`
	Citations []Chunk `json:"citations,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

// Engine queries one knowledge base.
type Engine struct {
	api        RuntimeAPI
	kbID       string
	modelARN   string
	maxResults int32

	// sessionID carries conversation state across Ask calls.
	sessionID *string
}

// NewEngine builds an Engine for the knowledge base. modelARN is the
// foundation model used for generation; maxResults bounds retrieval
// (0 means 5).
func NewEngine(api RuntimeAPI, kbID, modelARN string, maxResults int) *Engine {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Engine{
		api:        api,
		kbID:       kbID,
		modelARN:   modelARN,
		maxResults: int32(maxResults),
	}
}

func (e *Engine) retrievalConfig() *runtimetypes.KnowledgeBaseRetrievalConfiguration {
	return &runtimetypes.KnowledgeBaseRetrievalConfiguration{
		VectorSearchConfiguration: &runtimetypes.KnowledgeBaseVectorSearchConfiguration{
			NumberOfResults: aws.Int32(e.maxResults),
		},
	}
}

// Retrieve returns the raw chunks matching the query text.
func (e *Engine) Retrieve(ctx context.Context, text string) ([]Chunk, error) {
	if text == "" {
		return nil, fmt.Errorf("empty query")
	}

	out, err := e.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId:        aws.String(e.kbID),
		RetrievalQuery:         &runtimetypes.KnowledgeBaseQuery{Text: aws.String(text)},
		RetrievalConfiguration: e.retrievalConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving from knowledge base: %w", err)
	}

	chunks := make([]Chunk, 0, len(out.RetrievalResults))
	for _, r := range out.RetrievalResults {
		c := Chunk{
			Score:    aws.ToFloat64(r.Score),
			Metadata: decodeMetadata(r.Metadata),
		}
		if r.Content != nil {
			c.Content = aws.ToString(r.Content.Text)
		}
		c.Location = locationString(r.Location)
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Ask runs retrieve-and-generate for the query text. The session ID
// from the first response is reused so follow-up questions share
// conversation context.
func (e *Engine) Ask(ctx context.Context, text string) (*Answer, error) {
	if text == "" {
		return nil, fmt.Errorf("empty query")
	}

	out, err := e.api.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
		Input:     &runtimetypes.RetrieveAndGenerateInput{Text: aws.String(text)},
		SessionId: e.sessionID,
		RetrieveAndGenerateConfiguration: &runtimetypes.RetrieveAndGenerateConfiguration{
			Type: runtimetypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &runtimetypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId:        aws.String(e.kbID),
				ModelArn:               aws.String(e.modelARN),
				RetrievalConfiguration: e.retrievalConfig(),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve and generate: %w", err)
	}

	e.sessionID = out.SessionId

	answer := &Answer{SessionID: aws.ToString(out.SessionId)}
	if out.Output != nil {
		answer.Text = aws.ToString(out.Output.Text)
	}
	for _, citation := range out.Citations {
		for _, ref := range citation.RetrievedReferences {
			c := Chunk{Metadata: decodeMetadata(ref.Metadata)}
			if ref.Content != nil {
				c.Content = aws.ToString(ref.Content.Text)
			}
			c.Location = locationString(ref.Location)
			answer.Citations = append(answer.Citations, c)
		}
	}
	return answer, nil
}

// locationString flattens a retrieval result location to its URI.
func locationString(loc *runtimetypes.RetrievalResultLocation) string {
	if loc == nil {
		return ""
	}
	if loc.S3Location != nil {
		return aws.ToString(loc.S3Location.Uri)
	}
	return string(loc.Type)
}

// decodeMetadata converts smithy document values to plain Go values.
// Values that fail to decode are dropped.
func decodeMetadata(meta map[string]document.Interface) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		var val any
		if err := v.UnmarshalSmithyDocument(&val); err == nil {
			out[k] = val
		}
	}
	return out
}
