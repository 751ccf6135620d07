/*
Package swap holds the core data model of the swap engine: intentions
and their flags, key requests, command analysis, the hot keyspace and
the encoder contract.

# Request analysis

Analyze inspects one client command (or the queued sub-commands of a
transaction) and produces the ordered key requests the scheduler needs
before it can admit the command:

	var result swap.KeyRequests
	err := swap.Analyze(&swap.Client{Argv: argv}, &result)

Each request names the fencing level (server, database or key), the key
and the sub-fields in scope, and the intended swap direction. A request
without subkeys claims the whole object; a request with subkeys claims
only the enumerated sub-fields.

Commands resolve through one of two paths. Most declare their key
positions and inherit the command's intention — one whole-key request
per position. Commands whose key usage depends on their arguments
(subkey windows, option preambles, store targets, numeric set lists)
register a per-command analyzer instead.

# Ownership

Analysis writes references to the client's own argument tokens into the
result. A consumer that outlives the client must Copy the requests; the
scheduler moving requests into swap requests uses Move, which nulls the
source.

# Encoders

The Data interface is the plug-in surface for object encodings. The
executor drives it through EncodeKeys/EncodeData before store access,
DecodeData/CreateOrMergeObject after, and the SwapIn/SwapOut/SwapDel
finalizers on the pipeline thread. WholeKeyData is the built-in
encoding for objects stored as a single row.
*/
package swap
