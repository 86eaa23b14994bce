/*
Package executor implements the pipeline executor runtime: parsing a
pipeline's opaque YAML into a topologically ordered Graph, running it from
an arbitrary start node (RunFrom) or running just its input node
(RunInputOnly), and the compile-time registry executor types register
themselves into at init().

Executor types are never loaded dynamically; a Catalog only validates that
a parsed graph's declared types and settings look sane before RunFrom or
RunInputOnly touch it.

Four reference executors ship here — noop, fixed_source, fail_after, slow — as
minimal stand-ins for the real extraction/chunking/embedding executors,
which live in a separate executor library outside this repository's scope.
*/
package executor
