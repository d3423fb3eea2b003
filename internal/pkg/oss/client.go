package oss

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/autolaku_server/config"
)

// Client 回调原始报文归档，对账和争议处理时回查
type Client struct {
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// ArchiveNotification 归档一次回调的原始 JSON，按交易号分目录
func (c *Client) ArchiveNotification(transactionID string, raw []byte) (string, error) {
	objectKey := fmt.Sprintf("webhooks/%s/%d.json", transactionID, time.Now().UnixNano())

	err := c.bucket.PutObject(objectKey, bytes.NewReader(raw), oss.ContentType("application/json"))
	if err != nil {
		return "", fmt.Errorf("failed to archive notification: %w", err)
	}

	return c.url(objectKey), nil
}

func (c *Client) url(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.oss-cn-hangzhou.aliyuncs.com/%s", c.bucketName, objectKey)
}
