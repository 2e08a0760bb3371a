/*
Package markov builds first-order Markov transition models over tokenized
dictionary definitions and samples new definitions from them.

Training indexes every distinct token in first-seen order, appends the START
and END sentinels, counts the transitions between consecutive tokens
(including START -> first and last -> END) into a sparse square matrix, and
normalizes each row into a probability distribution. Generation walks from
START and draws successors until END is accepted.

The default successor rule picks a candidate uniformly among the nonzero
successors and accepts it when its probability beats a uniform draw,
repeating rejected draws under a bounded budget. StrategyCumulative replaces
it with a single inverse-CDF draw per step; seeded output changes when
switching between them.

Models can be persisted in any database/sql SQLite database through Store.
*/
package markov
