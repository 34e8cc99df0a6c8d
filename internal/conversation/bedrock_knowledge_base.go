package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	bartypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const opRetrieveAndGenerate = "retrieve_and_generate"

type bedrockRetrieveAndGenerateAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// BedrockKnowledgeBaseClient answers questions with Bedrock Knowledge Bases
// RetrieveAndGenerate.
type BedrockKnowledgeBaseClient struct {
	api             bedrockRetrieveAndGenerateAPI
	knowledgeBaseID string
	modelARN        string
	tracer          trace.Tracer
}

func NewBedrockKnowledgeBaseClient(api bedrockRetrieveAndGenerateAPI, knowledgeBaseID, modelARN string) *BedrockKnowledgeBaseClient {
	if api == nil {
		panic("conversation: bedrock agent runtime client cannot be nil")
	}
	return &BedrockKnowledgeBaseClient{
		api:             api,
		knowledgeBaseID: strings.TrimSpace(knowledgeBaseID),
		modelARN:        strings.TrimSpace(modelARN),
		tracer:          otel.Tracer("kbchat.internal.conversation.bedrock"),
	}
}

// ModelARN expands a foundation model id into the ARN RetrieveAndGenerate
// expects. Values that are already ARNs pass through.
func ModelARN(region, modelID string) string {
	modelID = strings.TrimSpace(modelID)
	if strings.HasPrefix(modelID, "arn:") {
		return modelID
	}
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", region, modelID)
}

func (c *BedrockKnowledgeBaseClient) Query(ctx context.Context, text, continuationToken string) (Answer, error) {
	ctx, span := c.tracer.Start(ctx, "conversation.retrieve_and_generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("kb.id", c.knowledgeBaseID),
		attribute.Bool("kb.continued", continuationToken != ""),
	)

	if c.knowledgeBaseID == "" || c.modelARN == "" {
		err := errors.New("conversation: knowledge base id and model arn are required")
		span.RecordError(err)
		return Answer{}, &RemoteError{Op: opRetrieveAndGenerate, Err: err}
	}

	input := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &bartypes.RetrieveAndGenerateInput{Text: aws.String(text)},
		RetrieveAndGenerateConfiguration: &bartypes.RetrieveAndGenerateConfiguration{
			Type: bartypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &bartypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(c.knowledgeBaseID),
				ModelArn:        aws.String(c.modelARN),
			},
		},
	}
	if continuationToken != "" {
		input.SessionId = aws.String(continuationToken)
	}

	out, err := c.api.RetrieveAndGenerate(ctx, input)
	if err != nil {
		span.RecordError(err)
		return Answer{}, newRemoteError(opRetrieveAndGenerate, err)
	}

	answer, err := answerFromOutput(out)
	if err != nil {
		span.RecordError(err)
		return Answer{}, err
	}
	span.SetAttributes(attribute.Int("kb.citations", len(answer.Citations)))
	return answer, nil
}

func answerFromOutput(out *bedrockagentruntime.RetrieveAndGenerateOutput) (Answer, error) {
	if out == nil || out.Output == nil || out.Output.Text == nil {
		return Answer{}, ErrMissingAnswer
	}
	return Answer{
		Text:              aws.ToString(out.Output.Text),
		ContinuationToken: aws.ToString(out.SessionId),
		Citations:         citationsFromOutput(out.Citations),
	}, nil
}

func citationsFromOutput(in []bartypes.Citation) []Citation {
	var out []Citation
	for _, c := range in {
		var citation Citation
		if c.GeneratedResponsePart != nil && c.GeneratedResponsePart.TextResponsePart != nil {
			citation.Text = strings.TrimSpace(aws.ToString(c.GeneratedResponsePart.TextResponsePart.Text))
		}
		seen := make(map[string]struct{})
		for _, ref := range c.RetrievedReferences {
			source := referenceSource(ref.Location)
			if source == "" {
				continue
			}
			if _, ok := seen[source]; ok {
				continue
			}
			seen[source] = struct{}{}
			citation.Sources = append(citation.Sources, source)
		}
		if len(citation.Sources) == 0 {
			continue
		}
		out = append(out, citation)
	}
	return out
}

func referenceSource(loc *bartypes.RetrievalResultLocation) string {
	if loc == nil {
		return ""
	}
	if loc.S3Location != nil {
		if uri := aws.ToString(loc.S3Location.Uri); uri != "" {
			return uri
		}
	}
	if loc.WebLocation != nil {
		return aws.ToString(loc.WebLocation.Url)
	}
	return ""
}
