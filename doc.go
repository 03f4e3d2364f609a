/*Package ddprofiler profiles the columns of data sources so that data-discovery
tools can find and compare datasets by content.

Sources are CSV files on local disk or S3, relational tables (MySQL,
PostgreSQL, Oracle, SQL Server, SQLite) and a synthetic benchmark source. Each
source is described by a task descriptor and submitted to a Conductor, which
runs a fixed pool of workers. A worker profiles one source at a time and writes
every column profile to a store: Elasticsearch, PostgreSQL, SQLite, JSON files,
or nothing at all.

A Driver wires these together for one of four execution modes. offline_files
walks a folder, offline_db walks the tables of a catalog, benchmark keeps the
queue filled with one source, and online accepts submissions over HTTP (or as
AWS Lambda invocations) until the process is stopped.
*/
package ddprofiler
