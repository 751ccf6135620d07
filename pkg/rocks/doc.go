/*
Package rocks owns the embedded cold store: lifecycle, raw-key codec,
periodic maintenance and the stats/info surface.

The store lives in one directory per epoch under a fixed root that is
cleared on process start. A reinit bumps the epoch and reopens at the
new path, which is how flush-all discards the whole cold dataset
without touching individual keys. The write-ahead log is disabled
throughout: the store is a cache of the primary data and is rebuilt
rather than recovered.

Raw keys carry a one-byte type tag. Whole-object rows are [tag][key];
sub-element rows are [tag][keylen][key][subkey] with a 4-byte
little-endian key length. NextKey computes the tight exclusive upper
bound of a prefix, which is what turns a prefix scan into a range
delete.

Snapshot and checkpoint are singleton slots: creating a second releases
the first. The cron samples SST footprint, probes the data directory
for write failures and schedules stats dumps; the stats parser projects
the textual dump into the line-oriented info block.
*/
package rocks
