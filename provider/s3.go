package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ Provider = (*S3Provider)(nil)

type objectInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *objectInfo) Name() string       { return f.name }
func (f *objectInfo) Size() int64        { return f.size }
func (f *objectInfo) IsDir() bool        { return f.isDir }
func (f *objectInfo) ModTime() time.Time { return f.modTime }

func dirInfo(name string) *objectInfo {
	return &objectInfo{name: strings.TrimSuffix(name, "/"), isDir: true}
}

// S3Provider serves objects of one bucket, optionally below a key prefix.
// Writes stream through the multipart upload manager.
type S3Provider struct {
	client   *s3.Client
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Provider creates an S3Provider with the default AWS credential chain.
func NewS3Provider(ctx context.Context, bucket string, prefix string) (*S3Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return NewS3ProviderFromClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3ProviderFromClient creates an S3Provider using an existing client.
func NewS3ProviderFromClient(client *s3.Client, bucket, prefix string) *S3Provider {
	return &S3Provider{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}
}

// buildKey maps a provider path to an object key below the prefix.
func (p *S3Provider) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	return strings.TrimPrefix(path.Join(p.prefix, subPath), "/")
}

// dirPrefix returns the listing prefix of a directory key.
func dirPrefix(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

func (p *S3Provider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return &objectInfo{
			name:    path.Base(key),
			size:    aws.ToInt64(head.ContentLength),
			isDir:   strings.HasSuffix(key, "/"),
			modTime: aws.ToTime(head.LastModified),
		}, nil
	}

	// no object under the exact key, a prefix with children is a directory
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(dirPrefix(key)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}
	if len(out.Contents) > 0 || len(out.CommonPrefixes) > 0 {
		return dirInfo(path.Base(key)), nil
	}
	return nil, fmt.Errorf("%w: %s", os.ErrNotExist, pth)
}

func (p *S3Provider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	prefix := dirPrefix(p.buildKey(pth))

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var infos []FileInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		for _, cp := range page.CommonPrefixes {
			infos = append(infos, dirInfo(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix)))
		}
		for _, obj := range page.Contents {
			if info := entryInfo(prefix, obj); info != nil {
				infos = append(infos, info)
			}
		}
	}
	return infos, nil
}

// entryInfo describes a listed object relative to prefix. The placeholder
// object of the directory itself yields nil.
func entryInfo(prefix string, obj types.Object) *objectInfo {
	name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
	if name == "" {
		return nil
	}
	if strings.HasSuffix(name, "/") {
		return dirInfo(name)
	}
	return &objectInfo{
		name:    name,
		size:    aws.ToInt64(obj.Size),
		modTime: aws.ToTime(obj.LastModified),
	}
}

func (p *S3Provider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite starts a managed upload fed by the returned writer. The object
// exists once Close returns nil.
func (p *S3Provider) OpenWrite(ctx context.Context, pth string, opts WriteOptions) (io.WriteCloser, error) {
	pr, pw := io.Pipe()

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
		Body:   pr,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.uploader.Upload(ctx, input)
		pr.CloseWithError(err)
		done <- err
	}()

	return &pipeUpload{pw: pw, done: done, backend: "s3"}, nil
}

func (p *S3Provider) Delete(ctx context.Context, pth string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", pth, err)
	}
	return nil
}

// pipeUpload is the writer end of an upload running in another goroutine.
type pipeUpload struct {
	pw      *io.PipeWriter
	done    <-chan error
	backend string
}

func (w *pipeUpload) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close ends the body and waits for the upload to finish.
func (w *pipeUpload) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	if err := <-w.done; err != nil {
		return fmt.Errorf("%s upload failed: %w", w.backend, err)
	}
	return nil
}
