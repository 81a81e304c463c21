package proofs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func testService() *Service {
	s := New(Config{
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		Bucket:    "proofs",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	s.now = func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }
	return s
}

func stubAWS(t *testing.T) {
	t.Helper()
	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
		presignGetObject = origGet
	})
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client { return &s3.Client{} }
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }
}

func TestUploadURL(t *testing.T) {
	stubAWS(t)
	var gotBucket, gotKey string
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotBucket, gotKey = aws.ToString(in.Bucket), aws.ToString(in.Key)
		return &v4.PresignedHTTPRequest{URL: "http://127.0.0.1:9000/proofs/" + gotKey + "?X-Amz-Signature=abc", Method: "PUT"}, nil
	}

	up, err := testService().UploadURL(context.Background(), "d1")
	if err != nil {
		t.Fatalf("UploadURL: %v", err)
	}
	if gotBucket != "proofs" {
		t.Fatalf("unexpected bucket %q", gotBucket)
	}
	if !strings.HasPrefix(up.Key, "deliveries/d1/2025/03/04/") || up.Key != gotKey {
		t.Fatalf("unexpected key %q", up.Key)
	}
	if up.Method != "PUT" || !strings.Contains(up.URL, up.Key) {
		t.Fatalf("unexpected upload %+v", up)
	}
	if !up.ExpiresAt.Equal(time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", up.ExpiresAt)
	}
}

func TestUploadURLErrorFromPresign(t *testing.T) {
	stubAWS(t)
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-put-fail")
	}
	if _, err := testService().UploadURL(context.Background(), "d1"); err == nil || err.Error() != "presign-put-fail" {
		t.Fatalf("want presign-put-fail, got %v", err)
	}
}

func TestUploadURLErrorFromConfig(t *testing.T) {
	stubAWS(t)
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	if _, err := testService().UploadURL(context.Background(), "d1"); err == nil || err.Error() != "load-fail" {
		t.Fatalf("want load-fail, got %v", err)
	}
}

func TestRejectsBadKeys(t *testing.T) {
	stubAWS(t)
	s := testService()
	if _, err := s.UploadURL(context.Background(), "a/b"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	for _, key := range []string{"users/x", "deliveries/../secret"} {
		if _, err := s.DownloadURL(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected invalid key for %q, got %v", key, err)
		}
	}
}

func TestDownloadURL(t *testing.T) {
	stubAWS(t)
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "http://127.0.0.1:9000/proofs/" + aws.ToString(in.Key), Method: "GET"}, nil
	}
	url, err := testService().DownloadURL(context.Background(), "deliveries/d1/2025/03/04/x")
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if url != "http://127.0.0.1:9000/proofs/deliveries/d1/2025/03/04/x" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("empty config must be disabled")
	}
	if !(Config{Region: "us-east-1", Bucket: "b"}).Enabled() {
		t.Fatal("expected enabled")
	}
}
