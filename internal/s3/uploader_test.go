package s3

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUploader_UploadFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cloudFront string
		wantURL    string
	}{
		{"s3 url", "", "https://parknet-images.s3.ap-south-1.amazonaws.com/facilities/maharagama/a.png"},
		{"cloudfront url", "cdn.parknet.lk", "https://cdn.parknet.lk/facilities/maharagama/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeS3{}
			u := &Uploader{Client: fake, Bucket: "parknet-images", Region: "ap-south-1", CloudFrontDomain: tt.cloudFront}

			url, err := u.UploadFile(context.Background(), strings.NewReader("png"), "facilities/maharagama/a.png", "image/png")
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if url != tt.wantURL {
				t.Fatalf("expected %s, got %s", tt.wantURL, url)
			}
			if aws.ToString(fake.input.ContentType) != "image/png" || aws.ToString(fake.input.Bucket) != "parknet-images" {
				t.Fatalf("unexpected input %+v", fake.input)
			}
		})
	}
}

func TestUploader_UploadFileError(t *testing.T) {
	t.Parallel()

	u := &Uploader{Client: &fakeS3{err: errors.New("access denied")}, Bucket: "b", Region: "r"}
	if _, err := u.UploadFile(context.Background(), strings.NewReader("x"), "k", ""); err == nil {
		t.Fatalf("expected error")
	}
}
