package invoker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/analyzer"
	"github.com/fyrsmithlabs/dispatchd/internal/scanner"
)

// LambdaInvoker triggers stages as AWS Lambda functions with event-style
// (fire and forget) invocations.
type LambdaInvoker struct {
	client           lambdaiface.LambdaAPI
	scannerFunction  string
	analyzerFunction string
	logger           *zap.Logger
}

// NewLambdaInvoker creates a Lambda-backed invoker.
func NewLambdaInvoker(region, endpoint, scannerFunction, analyzerFunction string, logger *zap.Logger) (*LambdaInvoker, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return NewLambdaInvokerWithClient(lambda.New(sess), scannerFunction, analyzerFunction, logger), nil
}

// NewLambdaInvokerWithClient injects the Lambda client, for tests.
func NewLambdaInvokerWithClient(client lambdaiface.LambdaAPI, scannerFunction, analyzerFunction string, logger *zap.Logger) *LambdaInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LambdaInvoker{
		client:           client,
		scannerFunction:  scannerFunction,
		analyzerFunction: analyzerFunction,
		logger:           logger,
	}
}

// InvokeScanner triggers the scanner function asynchronously.
func (l *LambdaInvoker) InvokeScanner(ctx context.Context, req scanner.Request) error {
	return l.invoke(ctx, "scanner", l.scannerFunction, req)
}

// InvokeAnalyzer triggers the analyzer function asynchronously.
func (l *LambdaInvoker) InvokeAnalyzer(ctx context.Context, req analyzer.Request) error {
	return l.invoke(ctx, "analyzer", l.analyzerFunction, req)
}

func (l *LambdaInvoker) invoke(ctx context.Context, stage, function string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", stage, err)
	}

	_, err = l.client.InvokeWithContext(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: aws.String(lambda.InvocationTypeEvent),
		Payload:        data,
	})
	if err != nil {
		Invocations.WithLabelValues(stage, "lambda", "error").Inc()
		return fmt.Errorf("invoking %s function %s: %w", stage, function, err)
	}

	Invocations.WithLabelValues(stage, "lambda", "success").Inc()
	l.logger.Info("stage invoked",
		zap.String("stage", stage),
		zap.String("function", function))
	return nil
}

var _ Invoker = (*LambdaInvoker)(nil)
