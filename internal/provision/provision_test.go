// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provision

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	oss "github.com/aws/aws-sdk-go-v2/service/opensearchserverless"
	osstypes "github.com/aws/aws-sdk-go-v2/service/opensearchserverless/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-engine/internal/waiter"
	"github.com/pdiddy/kb-engine/pkg/types"
)

func init() {
	// Use tiny delays so the ACTIVE polls finish quickly.
	waiter.PollInterval = 1 * time.Millisecond
	waiter.RetryBaseDelay = 1 * time.Millisecond
}

func notFound(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "not found"}
}

// --- fakes ---

type fakeS3 struct {
	buckets     map[string]bool
	createCalls int
	lastCreate  *s3.CreateBucketInput
	headErr     error
}

func (f *fakeS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if f.buckets[aws.ToString(params.Bucket)] {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, notFound("NotFound")
}

func (f *fakeS3) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.buckets == nil {
		f.buckets = map[string]bool{}
	}
	f.createCalls++
	f.lastCreate = params
	f.buckets[aws.ToString(params.Bucket)] = true
	return &s3.CreateBucketOutput{}, nil
}

type fakeIAM struct {
	roles    map[string]string // name -> arn
	policies []string
}

func (f *fakeIAM) GetRole(ctx context.Context, params *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if arn, ok := f.roles[aws.ToString(params.RoleName)]; ok {
		return &iam.GetRoleOutput{Role: &iamtypes.Role{Arn: aws.String(arn)}}, nil
	}
	return nil, notFound("NoSuchEntity")
}

func (f *fakeIAM) CreateRole(ctx context.Context, params *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	if f.roles == nil {
		f.roles = map[string]string{}
	}
	name := aws.ToString(params.RoleName)
	arn := "arn:aws:iam::123456789012:role/" + name
	f.roles[name] = arn
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{Arn: aws.String(arn)}}, nil
}

func (f *fakeIAM) PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	f.policies = append(f.policies, aws.ToString(params.PolicyName))
	return &iam.PutRolePolicyOutput{}, nil
}

type fakeAOSS struct {
	collections   map[string]*osstypes.CollectionDetail
	securityPols  []string
	accessPols    []string
	activateAfter int // BatchGet calls before a created collection turns ACTIVE
	batchGetCalls int
}

func (f *fakeAOSS) BatchGetCollection(ctx context.Context, params *oss.BatchGetCollectionInput, _ ...func(*oss.Options)) (*oss.BatchGetCollectionOutput, error) {
	f.batchGetCalls++
	out := &oss.BatchGetCollectionOutput{}
	for _, name := range params.Names {
		if d, ok := f.collections[name]; ok {
			detail := *d
			if detail.Status == osstypes.CollectionStatusCreating && f.batchGetCalls > f.activateAfter {
				detail.Status = osstypes.CollectionStatusActive
				detail.CollectionEndpoint = aws.String("https://" + aws.ToString(d.Id) + ".us-west-2.aoss.amazonaws.com")
				f.collections[name] = &detail
			}
			out.CollectionDetails = append(out.CollectionDetails, detail)
		}
	}
	return out, nil
}

func (f *fakeAOSS) CreateCollection(ctx context.Context, params *oss.CreateCollectionInput, _ ...func(*oss.Options)) (*oss.CreateCollectionOutput, error) {
	if f.collections == nil {
		f.collections = map[string]*osstypes.CollectionDetail{}
	}
	name := aws.ToString(params.Name)
	f.collections[name] = &osstypes.CollectionDetail{
		Name:   aws.String(name),
		Id:     aws.String("col123"),
		Arn:    aws.String("arn:aws:aoss:us-west-2:123456789012:collection/col123"),
		Status: osstypes.CollectionStatusCreating,
	}
	return &oss.CreateCollectionOutput{}, nil
}

func (f *fakeAOSS) CreateSecurityPolicy(ctx context.Context, params *oss.CreateSecurityPolicyInput, _ ...func(*oss.Options)) (*oss.CreateSecurityPolicyOutput, error) {
	f.securityPols = append(f.securityPols, aws.ToString(params.Name))
	return &oss.CreateSecurityPolicyOutput{}, nil
}

func (f *fakeAOSS) CreateAccessPolicy(ctx context.Context, params *oss.CreateAccessPolicyInput, _ ...func(*oss.Options)) (*oss.CreateAccessPolicyOutput, error) {
	f.accessPols = append(f.accessPols, aws.ToString(params.Name))
	return &oss.CreateAccessPolicyOutput{}, nil
}

type fakeAgent struct {
	kbs         map[string]*agenttypes.KnowledgeBase // id -> kb
	dataSources map[string][]agenttypes.DataSourceSummary
	nextID      int
	lastCreate  *bedrockagent.CreateKnowledgeBaseInput
	lastDS      *bedrockagent.CreateDataSourceInput
	createErr   error
}

func (f *fakeAgent) ListKnowledgeBases(ctx context.Context, params *bedrockagent.ListKnowledgeBasesInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.ListKnowledgeBasesOutput, error) {
	out := &bedrockagent.ListKnowledgeBasesOutput{}
	for id, kb := range f.kbs {
		out.KnowledgeBaseSummaries = append(out.KnowledgeBaseSummaries, agenttypes.KnowledgeBaseSummary{
			KnowledgeBaseId: aws.String(id),
			Name:            kb.Name,
			Status:          kb.Status,
		})
	}
	return out, nil
}

func (f *fakeAgent) GetKnowledgeBase(ctx context.Context, params *bedrockagent.GetKnowledgeBaseInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.GetKnowledgeBaseOutput, error) {
	kb, ok := f.kbs[aws.ToString(params.KnowledgeBaseId)]
	if !ok {
		return nil, notFound("ResourceNotFoundException")
	}
	// Created knowledge bases turn ACTIVE on the first poll.
	if kb.Status == agenttypes.KnowledgeBaseStatusCreating {
		kb.Status = agenttypes.KnowledgeBaseStatusActive
	}
	return &bedrockagent.GetKnowledgeBaseOutput{KnowledgeBase: kb}, nil
}

func (f *fakeAgent) CreateKnowledgeBase(ctx context.Context, params *bedrockagent.CreateKnowledgeBaseInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateKnowledgeBaseOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.kbs == nil {
		f.kbs = map[string]*agenttypes.KnowledgeBase{}
	}
	f.nextID++
	f.lastCreate = params
	id := "KB" + strings.Repeat("0", 3) + string(rune('0'+f.nextID))
	kb := &agenttypes.KnowledgeBase{
		KnowledgeBaseId:  aws.String(id),
		KnowledgeBaseArn: aws.String("arn:aws:bedrock:us-west-2:123456789012:knowledge-base/" + id),
		Name:             params.Name,
		Status:           agenttypes.KnowledgeBaseStatusCreating,
	}
	f.kbs[id] = kb
	return &bedrockagent.CreateKnowledgeBaseOutput{KnowledgeBase: kb}, nil
}

func (f *fakeAgent) ListDataSources(ctx context.Context, params *bedrockagent.ListDataSourcesInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.ListDataSourcesOutput, error) {
	return &bedrockagent.ListDataSourcesOutput{
		DataSourceSummaries: f.dataSources[aws.ToString(params.KnowledgeBaseId)],
	}, nil
}

func (f *fakeAgent) CreateDataSource(ctx context.Context, params *bedrockagent.CreateDataSourceInput, _ ...func(*bedrockagent.Options)) (*bedrockagent.CreateDataSourceOutput, error) {
	if f.dataSources == nil {
		f.dataSources = map[string][]agenttypes.DataSourceSummary{}
	}
	f.lastDS = params
	kbID := aws.ToString(params.KnowledgeBaseId)
	id := "DS" + string(rune('0'+len(f.dataSources[kbID])+1))
	f.dataSources[kbID] = append(f.dataSources[kbID], agenttypes.DataSourceSummary{
		DataSourceId: aws.String(id),
		Name:         params.Name,
	})
	return &bedrockagent.CreateDataSourceOutput{
		DataSource: &agenttypes.DataSource{DataSourceId: aws.String(id)},
	}, nil
}

type fakeIndex struct {
	calls    int
	endpoint string
	name     string
	dims     int
}

func (f *fakeIndex) EnsureIndex(ctx context.Context, endpoint, name string, dimensions int) error {
	f.calls++
	f.endpoint = endpoint
	f.name = name
	f.dims = dimensions
	return nil
}

func testIdentity() Identity {
	return Identity{
		AccountID: "123456789012",
		CallerARN: "arn:aws:sts::123456789012:assumed-role/sso/dev",
		Region:    "us-west-2",
	}
}

func testPipeline(cfg types.ProvisionConfig) (*Pipeline, *fakeS3, *fakeIAM, *fakeAOSS, *fakeAgent, *fakeIndex) {
	s3f := &fakeS3{}
	iamF := &fakeIAM{}
	aossF := &fakeAOSS{}
	agentF := &fakeAgent{}
	indexF := &fakeIndex{}
	p := New(Clients{S3: s3f, IAM: iamF, AOSS: aossF, Agent: agentF, Index: indexF},
		testIdentity(), cfg, &strings.Builder{})
	return p, s3f, iamF, aossF, agentF, indexF
}

// --- defaults ---

func TestApplyDefaults(t *testing.T) {
	cfg := types.ProvisionConfig{Suffix: "0232519"}
	applyDefaults(&cfg)

	assert.Equal(t, "bedrock-kb-0232519", cfg.Name)
	assert.Equal(t, []string{"bedrock-kb-0232519-data-1"}, cfg.Buckets)
	assert.Equal(t, "bedrock-kb-0232519-vs", cfg.VectorStoreName)
	assert.Equal(t, defaultVectorIndexName, cfg.VectorIndexName)
	assert.Equal(t, defaultEmbeddingModel, cfg.EmbeddingModelID)
	assert.Equal(t, defaultEmbeddingDims, cfg.EmbeddingDimensions)
	assert.Equal(t, types.ChunkingFixedSize, cfg.Chunking)
	assert.Equal(t, defaultChunkMaxTokens, cfg.ChunkMaxTokens)
	assert.Equal(t, defaultChunkOverlap, cfg.ChunkOverlapPercent)
}

func TestApplyDefaultsDerivesSuffix(t *testing.T) {
	cfg := types.ProvisionConfig{}
	applyDefaults(&cfg)

	assert.Len(t, cfg.Suffix, 7)
	assert.Contains(t, cfg.Name, cfg.Suffix)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := types.ProvisionConfig{
		Suffix:  "custom1",
		Name:    "my-kb",
		Buckets: []string{"bucket-a", "bucket-b"},
	}
	applyDefaults(&cfg)

	assert.Equal(t, "my-kb", cfg.Name)
	assert.Equal(t, []string{"bucket-a", "bucket-b"}, cfg.Buckets)
}

// --- full pipeline ---

func TestRunProvisionsFullStack(t *testing.T) {
	p, s3f, iamF, aossF, agentF, indexF := testPipeline(types.ProvisionConfig{Suffix: "0232519"})

	rec, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, s3f.buckets["bedrock-kb-0232519-data-1"])
	assert.Contains(t, iamF.roles, "bedrock-kb-role-0232519")
	assert.ElementsMatch(t, []string{"foundation-model-access", "s3-data-access", "aoss-access"}, iamF.policies)
	assert.Len(t, aossF.securityPols, 2)
	assert.Len(t, aossF.accessPols, 1)
	assert.Equal(t, 1, indexF.calls)
	assert.Equal(t, defaultVectorIndexName, indexF.name)
	assert.Equal(t, defaultEmbeddingDims, indexF.dims)
	require.NotNil(t, agentF.lastCreate)

	assert.Equal(t, "bedrock-kb-0232519", rec.KnowledgeBaseName)
	assert.NotEmpty(t, rec.KnowledgeBaseID)
	assert.Equal(t, "col123", rec.CollectionID)
	assert.NotEmpty(t, rec.CollectionEndpoint)
	require.Len(t, rec.DataSources, 1)
	assert.Equal(t, "s3-bedrock-kb-0232519-data-1", rec.DataSources[0].Name)
}

func TestRunIsIdempotent(t *testing.T) {
	p, s3f, _, aossF, agentF, _ := testPipeline(types.ProvisionConfig{Suffix: "0232519"})

	first, err := p.Run(context.Background())
	require.NoError(t, err)

	createBuckets := s3f.createCalls
	securityPols := len(aossF.securityPols)

	second, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.KnowledgeBaseID, second.KnowledgeBaseID)
	assert.Equal(t, createBuckets, s3f.createCalls, "bucket recreated on rerun")
	assert.Equal(t, securityPols, len(aossF.securityPols), "security policies recreated on rerun")
	assert.Len(t, agentF.kbs, 1, "knowledge base duplicated on rerun")
	require.Len(t, second.DataSources, 1)
	assert.Equal(t, first.DataSources[0].ID, second.DataSources[0].ID)
}

func TestRunUsesChunkingConfig(t *testing.T) {
	p, _, _, _, agentF, _ := testPipeline(types.ProvisionConfig{
		Suffix:              "0232519",
		ChunkMaxTokens:      300,
		ChunkOverlapPercent: 10,
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, agentF.lastDS)
	chunking := agentF.lastDS.VectorIngestionConfiguration.ChunkingConfiguration
	assert.Equal(t, agenttypes.ChunkingStrategyFixedSize, chunking.ChunkingStrategy)
	assert.Equal(t, int32(300), aws.ToInt32(chunking.FixedSizeChunkingConfiguration.MaxTokens))
	assert.Equal(t, int32(10), aws.ToInt32(chunking.FixedSizeChunkingConfiguration.OverlapPercentage))
}

func TestRunNoChunking(t *testing.T) {
	p, _, _, _, agentF, _ := testPipeline(types.ProvisionConfig{
		Suffix:   "0232519",
		Chunking: types.ChunkingNone,
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, agentF.lastDS)
	chunking := agentF.lastDS.VectorIngestionConfiguration.ChunkingConfiguration
	assert.Equal(t, agenttypes.ChunkingStrategyNone, chunking.ChunkingStrategy)
	assert.Nil(t, chunking.FixedSizeChunkingConfiguration)
}

func TestRunPropagatesHeadBucketError(t *testing.T) {
	p, s3f, _, _, _, _ := testPipeline(types.ProvisionConfig{Suffix: "0232519"})
	s3f.headErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}

	rec, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensuring bucket")
	// Even a first-step failure reports the record so the stack name is kept.
	require.NotNil(t, rec)
	assert.Equal(t, "bedrock-kb-0232519", rec.KnowledgeBaseName)
}

func TestRunReturnsPartialRecordOnFailure(t *testing.T) {
	p, s3f, _, _, agentF, _ := testPipeline(types.ProvisionConfig{Suffix: "0232519"})
	agentF.createErr = &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}

	rec, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensuring knowledge base")

	// Everything created before the failure is on the record, so teardown
	// can find the orphaned resources.
	require.NotNil(t, rec)
	assert.True(t, s3f.buckets["bedrock-kb-0232519-data-1"])
	assert.Equal(t, []string{"bedrock-kb-0232519-data-1"}, rec.Buckets)
	assert.Equal(t, "bedrock-kb-role-0232519", rec.RoleName)
	assert.NotEmpty(t, rec.RoleARN)
	assert.Equal(t, "col123", rec.CollectionID)
	assert.NotEmpty(t, rec.CollectionEndpoint)
	assert.Empty(t, rec.KnowledgeBaseID)
	assert.Empty(t, rec.DataSources)
}

// --- bucket region handling ---

func TestEnsureBucketLocationConstraint(t *testing.T) {
	p, s3f, _, _, _, _ := testPipeline(types.ProvisionConfig{Suffix: "0232519"})

	require.NoError(t, p.ensureBucket(context.Background(), "some-bucket"))
	require.NotNil(t, s3f.lastCreate)
	require.NotNil(t, s3f.lastCreate.CreateBucketConfiguration)
	assert.Equal(t, "us-west-2", string(s3f.lastCreate.CreateBucketConfiguration.LocationConstraint))
}

func TestEnsureBucketUSEast1OmitsConstraint(t *testing.T) {
	s3f := &fakeS3{}
	id := testIdentity()
	id.Region = "us-east-1"
	p := New(Clients{S3: s3f, IAM: &fakeIAM{}, AOSS: &fakeAOSS{}, Agent: &fakeAgent{}, Index: &fakeIndex{}},
		id, types.ProvisionConfig{Suffix: "0232519"}, &strings.Builder{})

	require.NoError(t, p.ensureBucket(context.Background(), "some-bucket"))
	require.NotNil(t, s3f.lastCreate)
	assert.Nil(t, s3f.lastCreate.CreateBucketConfiguration)
}

// --- collection wait ---

func TestEnsureCollectionWaitsForActive(t *testing.T) {
	p, _, _, aossF, _, _ := testPipeline(types.ProvisionConfig{Suffix: "0232519"})
	aossF.activateAfter = 3

	info, err := p.ensureCollection(context.Background(), "arn:aws:iam::123456789012:role/r")
	require.NoError(t, err)
	assert.Equal(t, "col123", info.ID)
	assert.NotEmpty(t, info.Endpoint)
	assert.Greater(t, aossF.batchGetCalls, 3)
}
