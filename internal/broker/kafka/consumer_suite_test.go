package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type readerMock struct {
	mock.Mock
}

func (m *readerMock) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (m *readerMock) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *readerMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type ConsumerSuite struct {
	suite.Suite
	rm *readerMock
	c  *Consumer
}

func (s *ConsumerSuite) SetupTest() {
	s.rm = &readerMock{}
	s.c = newConsumerWithReader(s.rm)
}

func (s *ConsumerSuite) TestConsume_HandlesAndCommits() {
	msg := kafka.Message{Key: []byte("o1"), Value: []byte(`{"order_id":"o1"}`)}
	stop := errors.New("stop")

	s.rm.On("FetchMessage", mock.Anything).Return(msg, nil).Once()
	s.rm.On("CommitMessages", mock.Anything, []kafka.Message{msg}).Return(nil).Once()
	s.rm.On("FetchMessage", mock.Anything).Return(kafka.Message{}, stop).Once()

	var gotK, gotV []byte
	err := s.c.Consume(context.Background(), func(k, v []byte) error {
		gotK, gotV = k, v
		return nil
	})
	s.Require().ErrorIs(err, stop)
	s.Require().Equal([]byte("o1"), gotK)
	s.Require().Equal([]byte(`{"order_id":"o1"}`), gotV)
	s.rm.AssertExpectations(s.T())
}

func (s *ConsumerSuite) TestConsume_HandlerErrorSkipsCommit() {
	msg := kafka.Message{Key: []byte("o1")}
	s.rm.On("FetchMessage", mock.Anything).Return(msg, nil).Once()

	want := errors.New("handler failed")
	err := s.c.Consume(context.Background(), func(k, v []byte) error { return want })
	s.Require().ErrorIs(err, want)
	s.rm.AssertNotCalled(s.T(), "CommitMessages", mock.Anything, mock.Anything)
}

func (s *ConsumerSuite) TestClose() {
	s.rm.On("Close").Return(nil).Once()
	s.Require().NoError(s.c.Close())
	s.rm.AssertExpectations(s.T())
}

func TestConsumerSuite(t *testing.T) {
	suite.Run(t, new(ConsumerSuite))
}

func TestNewConsumer_NotNil(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "shipment.updated", "ship-notifier")
	if c == nil {
		t.Fatal("nil consumer")
	}
}
