package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// Commands the agent can pick
const (
	CommandSummary  = "Summary"
	CommandExport   = "Export"
	CommandChart    = "Chart"
	CommandStations = "Stations"
	CommandGeneral  = "GeneralQuery"
)

// AgentResponse defines the structured output from the OpenAI agent.
type AgentResponse struct {
	CommandName string   `json:"command_name" jsonschema_description:"The command to execute: Summary, Export, Chart, Stations or GeneralQuery"`
	StartDate   string   `json:"start_date" jsonschema_description:"Start of the requested date range as YYYY-MM-DD, or an empty string"`
	EndDate     string   `json:"end_date" jsonschema_description:"End of the requested date range as YYYY-MM-DD, or an empty string"`
	Stations    []string `json:"stations" jsonschema_description:"Monitoring station names exactly as they appear in the known list"`
	Chart       string   `json:"chart" jsonschema_description:"For Chart: one of temperature, oxygen, turbidity, nitrate, top-stations, composition, map. Otherwise empty"`
	Format      string   `json:"format" jsonschema_description:"For Export: csv or xlsx. Otherwise empty"`
	UserMessage string   `json:"user_message" jsonschema_description:"A message to show back to the user in their original language"`
}

// OpenAIService defines the interface for interacting with the OpenAI agent.
type OpenAIService interface {
	InterpretRequest(ctx context.Context, userMessage string, stations []string) (*AgentResponse, error)
}

// openAIServiceImpl implements the OpenAIService interface.
type openAIServiceImpl struct {
	client openai.Client
	schema interface{}
	logger *zap.Logger
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewOpenAIService creates and initializes a new OpenAIService.
func NewOpenAIService(apiKey string, logger *zap.Logger) (OpenAIService, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	schema := GenerateSchema[AgentResponse]()

	return &openAIServiceImpl{
		client: client,
		schema: schema,
		logger: logger,
	}, nil
}

// systemPrompt builds the instructions for the agent
func systemPrompt(stations []string) string {
	return fmt.Sprintf(`You are a concise assistant for a river water-quality dashboard. Users ask for statistics, charts and exports of water measurements from monitoring stations.

You understand any language and reply in the same language the user used.

Known monitoring stations: %s

Behavior:
1. If the user wants statistics or an overview: command_name = "Summary".
2. If the user wants to download data: command_name = "Export", format = "csv" unless they ask for Excel or xlsx.
3. If the user wants a chart: command_name = "Chart" and chart = the best match of temperature, oxygen, turbidity, nitrate, top-stations, composition, map.
4. If the user asks which stations exist: command_name = "Stations".
5. Anything else (greetings, small talk, questions outside water quality): command_name = "GeneralQuery" and user_message is a short helpful reply.

Dates go into start_date/end_date as YYYY-MM-DD; leave them empty when the user gives none. Put stations only when the user names them, using the exact spelling from the known list; otherwise leave the list empty.
user_message: a one-line confirmation of what you are about to show, in the user's language.

Output **strictly** in JSON.`, strings.Join(stations, ", "))
}

// InterpretRequest sends a message to the OpenAI agent and returns the structured response.
func (s *openAIServiceImpl) InterpretRequest(ctx context.Context, userMessage string, stations []string) (*AgentResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "agent_response",
		Description: openai.String("Structured response containing command, date range, stations, chart, format and user message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(stations)),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: respFormat,
		Model:          openai.ChatModelGPT4o,
	})

	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	agentResp, err := ParseAgentResponse(chat.Choices[0].Message.Content)
	if err != nil {
		s.logger.Warn("Failed to unmarshal OpenAI response",
			zap.Error(err),
			zap.String("raw", chat.Choices[0].Message.Content))
		return nil, err
	}
	return agentResp, nil
}

// ParseAgentResponse decodes the agent's JSON answer
func ParseAgentResponse(content string) (*AgentResponse, error) {
	var agentResp AgentResponse
	if err := json.Unmarshal([]byte(content), &agentResp); err != nil {
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	return &agentResp, nil
}
