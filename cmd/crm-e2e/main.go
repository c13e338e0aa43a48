// Command crm-e2e runs the CRM end-to-end suites.
package main

import "github.com/devicelab-dev/crm-e2e/pkg/cli"

func main() {
	cli.Execute()
}
