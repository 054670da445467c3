package delivery

import msgmodel "PPDirect/module/message/model"

// Outcome of one send. Not persisted.
type Outcome string

const (
	Delivered Outcome = "delivered" // 本进程直接写入对端 socket
	Published Outcome = "published" // 交给 broker 由其他进程投递
	Failed    Outcome = "failed"
)

func decide(local, published bool) Outcome {
	switch {
	case local:
		return Delivered
	case published:
		return Published
	default:
		return Failed
	}
}

// Receipt is what the sender is told after a send.
type Receipt struct {
	Outcome Outcome
	Message *msgmodel.Message
}
