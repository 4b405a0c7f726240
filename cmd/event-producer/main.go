package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// EventSubmission mirrors the message format the server consumes
type EventSubmission struct {
	Host      int64                        `json:"host"`
	Attendees []int64                      `json:"attendees,omitempty"`
	Location  string                       `json:"location"`
	Kind      string                       `json:"kind"`
	Metadata  map[string]map[string]string `json:"metadata,omitempty"`
}

var locations = []string{
	"Training Grounds", "Main Hall", "Outpost Delta", "The Citadel", "North Range",
	"Parade Square", "Harbor Gate", "Observation Deck",
}

var kinds = []string{
	"training", "raid", "patrol", "rally", "inspection", "gamenight",
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "attendance-events", "Kafka topic")
	memberPool := flag.Int("members", 200, "Size of the member id pool")
	maxAttendees := flag.Int("max-attendees", 12, "Maximum attendees per event")
	eventsPerMinute := flag.Int("rate", 30, "Events per minute")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Attendance event producer")
	fmt.Printf("  Brokers:      %s\n", *brokers)
	fmt.Printf("  Topic:        %s\n", *topic)
	fmt.Printf("  Member pool:  %d\n", *memberPool)
	fmt.Printf("  Events/min:   %d\n", *eventsPerMinute)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Send message helper
	sendEvent := func(sub EventSubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(strconv.FormatInt(sub.Host, 10)),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	randomEvent := func() EventSubmission {
		host := int64(rand.Intn(*memberPool) + 1)
		count := rand.Intn(*maxAttendees) + 1
		attendees := make([]int64, 0, count)
		for i := 0; i < count; i++ {
			attendee := int64(rand.Intn(*memberPool) + 1)
			if attendee != host {
				attendees = append(attendees, attendee)
			}
		}
		return EventSubmission{
			Host:      host,
			Attendees: attendees,
			Location:  locations[rand.Intn(len(locations))],
			Kind:      kinds[rand.Intn(len(kinds))],
		}
	}

	interval := time.Minute / time.Duration(*eventsPerMinute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventCount int64

	fmt.Println("Producing events. Press Ctrl+C to stop.")
	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			sendEvent(randomEvent())
			atomic.AddInt64(&eventCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&eventCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
