package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-backend/handler"
	"chat-backend/internal/config"
	"chat-backend/internal/integrations/openai"
	"chat-backend/internal/integrations/paramstore"
	"chat-backend/internal/repository"
	"chat-backend/internal/usecase"
)

// AWS SDK attempts per call, shared by DynamoDB and SSM.
const awsMaxAttempts = 5

// NewHandler wires every collaborator behind the API handler. Both the
// Lambda entry point and the local server start from here.
func NewHandler(ctx context.Context, cfg config.Config) (*handler.Handler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRetryMaxAttempts(awsMaxAttempts))
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}
	return newHandler(ctx, cfg, awsCfg)
}

func newHandler(ctx context.Context, cfg config.Config, awsCfg aws.Config) (*handler.Handler, error) {
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}

	store, err := repository.Open(ctx, awsdynamodb.NewFromConfig(awsCfg), repository.Tables{
		Sessions:      cfg.SessionsTable,
		Messages:      cfg.MessagesTable,
		SessionsIndex: cfg.SessionsIndex,
		MessagesIndex: cfg.MessagesIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	opts := []openai.Option{openai.WithMaxAttempts(cfg.LLMMaxAttempts)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	openaiClient, err := openai.NewClient(ssmClient, cfg.ParamPrefix, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}

	chatService, err := usecase.NewChatService(ssmClient, openaiClient, store, cfg.ParamPrefix, cfg.MaxMessageLength, cfg.ContextMessages)
	if err != nil {
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}

	return handler.NewHandler(chatService, handler.WithAllowedOrigins(cfg.AllowedOrigins))
}
