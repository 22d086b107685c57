package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	awsrequest "github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dispatchd/internal/analyzer"
	"github.com/fyrsmithlabs/dispatchd/internal/scanner"
)

type mockScannerStage struct {
	mu     sync.Mutex
	calls  []scanner.Request
	result *scanner.Result
	err    error
}

func (m *mockScannerStage) Run(_ context.Context, req scanner.Request) (*scanner.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	return m.result, m.err
}

type mockAnalyzerStage struct {
	mu    sync.Mutex
	calls []analyzer.Request
	err   error
}

func (m *mockAnalyzerStage) Run(_ context.Context, req analyzer.Request) (*analyzer.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &analyzer.Result{ScanID: req.ScanID}, nil
}

func TestLocalInvokerChainsAnalyzerAfterScan(t *testing.T) {
	scn := &mockScannerStage{result: &scanner.Result{ScanID: "scan_abc", FindingsCount: 2}}
	ana := &mockAnalyzerStage{}
	inv := NewLocalInvoker(scn, ana, 0, nil)

	require.NoError(t, inv.InvokeScanner(context.Background(), scanner.Request{RepoURL: "https://github.com/acme/app"}))
	inv.Wait()

	require.Len(t, scn.calls, 1)
	assert.Equal(t, "https://github.com/acme/app", scn.calls[0].RepoURL)
	require.Len(t, ana.calls, 1)
	assert.Equal(t, "scan_abc", ana.calls[0].ScanID)
}

func TestLocalInvokerSkipsAnalyzerOnScanFailure(t *testing.T) {
	scn := &mockScannerStage{err: errors.New("clone failed")}
	ana := &mockAnalyzerStage{}
	inv := NewLocalInvoker(scn, ana, 0, nil)

	require.NoError(t, inv.InvokeScanner(context.Background(), scanner.Request{RepoURL: "https://github.com/acme/app"}))
	inv.Wait()

	assert.Len(t, scn.calls, 1)
	assert.Empty(t, ana.calls)
}

func TestLocalInvokerInvokeAnalyzer(t *testing.T) {
	ana := &mockAnalyzerStage{}
	inv := NewLocalInvoker(&mockScannerStage{}, ana, 0, nil)

	require.NoError(t, inv.InvokeAnalyzer(context.Background(), analyzer.Request{ScanID: "scan_xyz"}))
	inv.Wait()

	require.Len(t, ana.calls, 1)
	assert.Equal(t, "scan_xyz", ana.calls[0].ScanID)
}

type mockLambdaClient struct {
	lambdaiface.LambdaAPI
	inputs []*lambda.InvokeInput
	err    error
}

func (m *mockLambdaClient) InvokeWithContext(_ aws.Context, input *lambda.InvokeInput, _ ...awsrequest.Option) (*lambda.InvokeOutput, error) {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	return &lambda.InvokeOutput{StatusCode: aws.Int64(202)}, nil
}

func TestLambdaInvokerScanner(t *testing.T) {
	client := &mockLambdaClient{}
	inv := NewLambdaInvokerWithClient(client, "dispatchd-scanner", "dispatchd-analyzer", nil)

	err := inv.InvokeScanner(context.Background(), scanner.Request{RepoURL: "https://github.com/acme/app", Branch: "dev"})
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "dispatchd-scanner", aws.StringValue(input.FunctionName))
	assert.Equal(t, lambda.InvocationTypeEvent, aws.StringValue(input.InvocationType))

	var req scanner.Request
	require.NoError(t, json.Unmarshal(input.Payload, &req))
	assert.Equal(t, "https://github.com/acme/app", req.RepoURL)
	assert.Equal(t, "dev", req.Branch)
}

func TestLambdaInvokerAnalyzer(t *testing.T) {
	client := &mockLambdaClient{}
	inv := NewLambdaInvokerWithClient(client, "dispatchd-scanner", "dispatchd-analyzer", nil)

	err := inv.InvokeAnalyzer(context.Background(), analyzer.Request{ScanID: "scan_abc"})
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "dispatchd-analyzer", aws.StringValue(client.inputs[0].FunctionName))

	var req analyzer.Request
	require.NoError(t, json.Unmarshal(client.inputs[0].Payload, &req))
	assert.Equal(t, "scan_abc", req.ScanID)
}

func TestLambdaInvokerError(t *testing.T) {
	client := &mockLambdaClient{err: errors.New("function not found")}
	inv := NewLambdaInvokerWithClient(client, "dispatchd-scanner", "dispatchd-analyzer", nil)

	err := inv.InvokeScanner(context.Background(), scanner.Request{RepoURL: "https://github.com/acme/app"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatchd-scanner")
}
