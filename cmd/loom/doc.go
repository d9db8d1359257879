// Command loom runs registered tasks in isolated worker processes through a
// bounded execution queue. The same binary serves as the worker child: when
// re-executed by a Worker it runs a single task and exits.
package main
