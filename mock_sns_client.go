package main

import (
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type MockSNSClient struct {
	lock            sync.Mutex
	PublishRequests []*sns.PublishInput
	publishErr      error
}

func (c *MockSNSClient) PublishMessage(msg *sns.PublishInput) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.PublishRequests = append(c.PublishRequests, msg)
	return c.publishErr
}

func NewMockSNSClient() *MockSNSClient {
	return &MockSNSClient{
		PublishRequests: make([]*sns.PublishInput, 0),
	}
}
