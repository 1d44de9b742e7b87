// Package delivery queues accepted announcements and delivers them to the
// output channel.
//
// One worker, one in-flight send: delivery order is exactly priority order
// (descending, FIFO within equal priority). A hard rate limit pauses the
// whole queue and puts the failed task back at the head, so nothing overtakes
// it. Transient failures retry with exponential backoff; permanent failures
// settle the task's receipt with the terminal error. Every receipt settles
// exactly once.
package delivery
