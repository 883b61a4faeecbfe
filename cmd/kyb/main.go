// Command kyb runs the KYB work queue API, the outbox relay and the
// compliance refresh scheduler.
package main

func main() {
	Execute()
}
