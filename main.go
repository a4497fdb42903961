package main

import (
	"context"
	"time"

	"github.com/shandysiswandi/gostream/internal/app"
)

func main() {
	application := app.New()    // Initialize the application
	wait := application.Start() // Start the application and wait for a termination signal or job completion
	<-wait                      // Wait for the application to receive a termination signal
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	application.Stop(ctx) // Stop the application gracefully
}
