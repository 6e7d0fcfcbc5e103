package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/minigame-engine/internal/domain"
)

var memberPrefixes = []string{
	"Runner", "Sprinter", "Lifter", "Climber", "Rower", "Swimmer", "Cyclist", "Boxer", "Skater", "Hiker",
	"Pacer", "Strider", "Vaulter", "Jumper", "Racer", "Trekker", "Paddler", "Dasher", "Walker", "Glider",
	"Iron", "Swift", "Steady", "Rapid", "Mighty", "Brisk", "Agile", "Bold", "Keen", "Fleet",
}

func memberName(idx int) string {
	prefixIdx := idx % len(memberPrefixes)
	suffix := idx/len(memberPrefixes) + 1
	return fmt.Sprintf("%s%d", memberPrefixes[prefixIdx], suffix)
}

// workout describes one kind of loggable activity and its point range
type workout struct {
	description string
	minPoints   int
	maxPoints   int
}

var workouts = []workout{
	{"Morning run", 20, 60},
	{"Evening walk", 10, 30},
	{"Gym session", 25, 70},
	{"Bike ride", 20, 80},
	{"Swim laps", 30, 60},
	{"Yoga class", 15, 35},
	{"HIIT workout", 30, 75},
	{"Step goal hit", 10, 25},
	{"Trail hike", 35, 90},
	{"Rowing intervals", 25, 65},
}

func randomSubmission(challengeID, userID string, now time.Time) domain.ActivitySubmission {
	w := workouts[rand.Intn(len(workouts))]

	// Most members log the same day; a few backfill yesterday's workout
	loggedDate := now
	if rand.Intn(100) < 20 {
		loggedDate = now.AddDate(0, 0, -1)
	}

	return domain.ActivitySubmission{
		ChallengeID: challengeID,
		UserID:      userID,
		Points:      int64(rand.Intn(w.maxPoints-w.minPoints+1) + w.minPoints),
		Description: w.description,
		LoggedDate:  loggedDate,
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "challenge-activities", "Kafka topic")
	challengeID := flag.String("challenge", "challenge1", "Challenge ID")
	totalMembers := flag.Int("members", 200, "Total number of members to simulate")
	updatesPerSecond := flag.Int("rate", 50, "Activities per second")
	batchSize := flag.Int("batch", 10, "Batch size for initial population")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	initialOnly := flag.Bool("initial-only", false, "Only log initial activities, no continuous updates")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🏃 Challenge Activity Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Challenge:        %s\n", *challengeID)
	fmt.Printf("  Total Members:    %d\n", *totalMembers)
	fmt.Printf("  Activities/sec:   %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
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

	// Send message helper. Keyed by user so one member's activities stay
	// ordered within a partition.
	sendMessage := func(sub domain.ActivitySubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(sub.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	// Log an opening activity for every member in batches
	fmt.Printf("Logging kickoff activities for %d members...\n", *totalMembers)
	for i := 0; i < *totalMembers; i += *batchSize {
		end := i + *batchSize
		if end > *totalMembers {
			end = *totalMembers
		}

		for j := i; j < end; j++ {
			sendMessage(randomSubmission(*challengeID, memberName(j), time.Now()))
		}

		progress := float64(end) / float64(*totalMembers) * 100
		fmt.Printf("\r  Progress: %d/%d members (%.1f%%)", end, *totalMembers, progress)
	}
	fmt.Printf("\n✓ Logged activities for %d members\n\n", *totalMembers)

	if *initialOnly {
		fmt.Println("Initial-only mode: Exiting after kickoff activities")
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
		return
	}

	// Start continuous activity logging
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Starting continuous activity logging (%d/sec)\n", *updatesPerSecond)
	fmt.Println("The 20 most regular members have a 70% chance per tick (to create movement)")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*updatesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var updateCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			close(done)
			producer.AsyncClose()
			wg.Wait()
			fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				close(done)
				producer.AsyncClose()
				wg.Wait()
				fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
				return
			}

			// 70% chance to pick one of the 20 most regular members
			var memberIdx int
			if rand.Intn(100) < 70 {
				memberIdx = rand.Intn(20)
			} else {
				memberIdx = rand.Intn(*totalMembers-20) + 20
			}

			sendMessage(randomSubmission(*challengeID, memberName(memberIdx), time.Now()))
			atomic.AddInt64(&updateCount, 1)

		case <-statsTicker.C:
			updates := atomic.LoadInt64(&updateCount)
			success := atomic.LoadInt64(&successCount)
			errors := atomic.LoadInt64(&errorCount)
			fmt.Printf("[%s] Activities: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				updates,
				success,
				errors,
			)
		}
	}
}
